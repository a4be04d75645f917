package gemini

import (
	"fmt"
	"strings"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/extract"
	"github.com/finsheet-io/finsheet/internal/core/ports"
)

func joinOrUnknown(values []string) string {
	if len(values) == 0 {
		return "unknown"
	}
	return strings.Join(values, ", ")
}

func buildExtractionPrompt(profile domain.Profile, req ports.LLMRequest) string {
	vocabulary := strings.Join(extract.Vocabulary(profile), ", ")

	source := "No extracted text lines were available. Read directly from the PDF document part."
	if len(req.CandidateLines) > 0 {
		source = "Financial lines:\n" + strings.Join(req.CandidateLines, "\n")
	}

	return fmt.Sprintf(`You are a financial extraction engine.
Return JSON only with this schema.
Extract only income statement line items for a multi-period statement.
Normalize labels to concise names such as:
%s, Other.
Use numbers exactly as present. Do not invent numbers.
If periods are visible (for example FY25, Q1 FY26, 2025), return them in order in 'periods'.
Extract up to %d values per line item.

Document: %s
Known years (heuristic): %s
Known periods (heuristic): %s
Known currency (heuristic): %s
Known units (heuristic): %s

%s`,
		vocabulary,
		profile.ValueCap(),
		req.DocumentName,
		joinOrUnknown(req.Hints.Years),
		joinOrUnknown(req.Hints.Periods),
		req.Hints.Currency,
		req.Hints.Units,
		source,
	)
}
