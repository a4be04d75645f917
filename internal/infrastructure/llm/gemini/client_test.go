package gemini

import (
	"strings"
	"testing"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/ports"
)

func TestConfigured(t *testing.T) {
	if New("", "gemini-2.5-flash", domain.ProfileExtended).Configured() {
		t.Fatalf("expected unconfigured client without api key")
	}
	if !New("key", "gemini-2.5-flash", domain.ProfileExtended).Configured() {
		t.Fatalf("expected configured client with api key")
	}
}

func TestBuildExtractionPromptEmbedsHintsAndLines(t *testing.T) {
	req := ports.LLMRequest{
		DocumentName:   "annual.pdf",
		CandidateLines: []string{"Revenue 1,250,000", "Net Income (100,000)"},
		Hints: domain.StatementMetadata{
			DocumentName: "annual.pdf",
			Periods:      []string{"FY2025", "FY2024"},
			Years:        []string{"2025", "2024"},
			Currency:     "USD",
			Units:        "millions",
		},
	}

	prompt := buildExtractionPrompt(domain.ProfileExtended, req)
	for _, want := range []string{
		"Document: annual.pdf",
		"Known years (heuristic): 2025, 2024",
		"Known periods (heuristic): FY2025, FY2024",
		"Known currency (heuristic): USD",
		"Known units (heuristic): millions",
		"Revenue from Operations",
		"Do not invent numbers",
		"Financial lines:\nRevenue 1,250,000\nNet Income (100,000)",
		"Extract up to 8 values per line item",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildExtractionPromptWithoutCandidateLines(t *testing.T) {
	prompt := buildExtractionPrompt(domain.ProfileBase, ports.LLMRequest{DocumentName: "scan.pdf"})
	if !strings.Contains(prompt, "Read directly from the PDF document part") {
		t.Fatalf("expected inline-document instruction:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Known years (heuristic): unknown") {
		t.Fatalf("expected unknown hint fallback:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Extract up to 4 values per line item") {
		t.Fatalf("expected base profile cap in prompt:\n%s", prompt)
	}
}

func TestBuildPartsAttachesPDFOnlyWithoutLines(t *testing.T) {
	withLines := ports.LLMRequest{CandidateLines: []string{"Revenue 1"}, RawDocument: []byte("%PDF")}
	if parts := buildParts("p", withLines); len(parts) != 1 {
		t.Fatalf("expected text-only parts with candidate lines, got %d", len(parts))
	}

	withoutLines := ports.LLMRequest{RawDocument: []byte("%PDF")}
	parts := buildParts("p", withoutLines)
	if len(parts) != 2 {
		t.Fatalf("expected prompt plus inline document, got %d parts", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "application/pdf" {
		t.Fatalf("expected inline pdf part, got %+v", parts[1])
	}
}

func TestDecodeResponseValid(t *testing.T) {
	content := `{
		"periods": ["FY2025"],
		"years": ["2025"],
		"currency": "usd",
		"units": "Millions",
		"lineItems": [
			{"normalizedLineItem": "Revenue", "rawLine": "Revenue 100", "values": [100], "confidence": 0.8}
		]
	}`

	parsed, err := decodeResponse(domain.ProfileExtended, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.LineItems) != 1 || parsed.LineItems[0].NormalizedLineItem != "Revenue" {
		t.Fatalf("unexpected line items %+v", parsed.LineItems)
	}
	if parsed.LineItems[0].Confidence == nil || *parsed.LineItems[0].Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %+v", parsed.LineItems[0].Confidence)
	}
}

func TestDecodeResponseNonJSON(t *testing.T) {
	_, err := decodeResponse(domain.ProfileExtended, "sure, here is the data you asked for")
	if err == nil || isSchemaError(err) {
		t.Fatalf("expected non-schema decode error, got %v", err)
	}
}

func TestDecodeResponseSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing lineItems": `{"years": ["2025"]}`,
		"bad year format":   `{"years": ["25"], "lineItems": []}`,
		"missing rawLine":   `{"lineItems": [{"normalizedLineItem": "Revenue", "values": [1]}]}`,
		"too many values":   `{"lineItems": [{"normalizedLineItem": "Revenue", "rawLine": "r", "values": [1,2,3,4,5,6,7,8,9]}]}`,
	}
	for name, content := range cases {
		if _, err := decodeResponse(domain.ProfileExtended, content); err == nil || !isSchemaError(err) {
			t.Fatalf("%s: expected schema error, got %v", name, err)
		}
	}
}

func TestDecodeResponseEnforcesProfileValueCap(t *testing.T) {
	content := `{"lineItems": [{"normalizedLineItem": "Revenue", "rawLine": "r", "values": [1,2,3,4,5]}]}`

	if _, err := decodeResponse(domain.ProfileBase, content); err == nil || !isSchemaError(err) {
		t.Fatalf("expected schema error for five values under the four-value cap, got %v", err)
	}
	if _, err := decodeResponse(domain.ProfileExtended, content); err != nil {
		t.Fatalf("expected five values to pass under the eight-value cap, got %v", err)
	}
}

func TestDecodeResponseYearCapPerProfile(t *testing.T) {
	content := `{"lineItems": [], "years": ["2020", "2021", "2022", "2023", "2024"]}`

	if _, err := decodeResponse(domain.ProfileBase, content); err == nil || !isSchemaError(err) {
		t.Fatalf("expected schema error for five years under the base profile, got %v", err)
	}
	if _, err := decodeResponse(domain.ProfileExtended, content); err != nil {
		t.Fatalf("expected five years to pass under the extended profile, got %v", err)
	}
}

func TestMergeResultParsedListsWin(t *testing.T) {
	hints := domain.StatementMetadata{
		DocumentName: "doc.pdf",
		Periods:      []string{"FY2020"},
		Years:        []string{"2020"},
		Currency:     "INR",
		Units:        "thousands",
	}
	confidence := 1.7
	parsed := llmResponse{
		Periods:  []string{"FY2025"},
		Currency: "usd",
		LineItems: []llmLineItem{
			{NormalizedLineItem: "Revenue", RawLine: "Revenue 100", Values: []float64{100}, Confidence: &confidence},
			{NormalizedLineItem: "EPS", RawLine: "EPS 2.5", Values: []float64{2.5}},
		},
	}

	result := mergeResult("doc.pdf", parsed, hints)
	if got := result.Metadata.Periods; len(got) != 1 || got[0] != "FY2025" {
		t.Fatalf("expected parsed periods to win, got %v", got)
	}
	if got := result.Metadata.Years; len(got) != 1 || got[0] != "2020" {
		t.Fatalf("expected hint years to survive empty parse, got %v", got)
	}
	if result.Metadata.Currency != "USD" {
		t.Fatalf("expected uppercased currency, got %q", result.Metadata.Currency)
	}
	if result.Metadata.Units != "thousands" {
		t.Fatalf("expected hint units, got %q", result.Metadata.Units)
	}
	if result.Rows[0].Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", result.Rows[0].Confidence)
	}
	if result.Rows[1].Confidence != defaultConfidence {
		t.Fatalf("expected default confidence, got %v", result.Rows[1].Confidence)
	}
	if result.Rows[0].DocumentName != "doc.pdf" {
		t.Fatalf("expected document name stamped on rows, got %q", result.Rows[0].DocumentName)
	}
}

func TestMergeResultDefaultsWhenEverythingMissing(t *testing.T) {
	result := mergeResult("doc.pdf", llmResponse{}, domain.StatementMetadata{DocumentName: "doc.pdf"})
	if result.Metadata.Currency != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN currency, got %q", result.Metadata.Currency)
	}
	if result.Metadata.Units != "unknown" {
		t.Fatalf("expected unknown units, got %q", result.Metadata.Units)
	}
	if len(result.Rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(result.Rows))
	}
}
