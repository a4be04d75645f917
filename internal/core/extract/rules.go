package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

// numericTokenRe tolerates thousands separators and accounting-style
// parenthesized negatives: "1,234.56", "(100,000)", "-42".
var numericTokenRe = regexp.MustCompile(`\(?-?\d[\d,]*(?:\.\d+)?\)?`)

type lineItemPattern struct {
	normalized string
	patterns   []*regexp.Regexp
}

// baseVocabulary covers a compact income statement. Order matters: the
// first matching label wins and a line never yields more than one row.
var baseVocabulary = []lineItemPattern{
	{"Revenue", compileAll(`\brevenue\b`, `\bsales\b`, `\btotal income\b`)},
	{"Cost of Revenue", compileAll(`\bcost of revenue\b`, `\bcost of sales\b`)},
	{"Gross Profit", compileAll(`\bgross profit\b`)},
	{"Operating Expenses", compileAll(`\boperating expenses?\b`, `\boperating costs?\b`)},
	{"Operating Income", compileAll(`\boperating income\b`, `\boperating profit\b`, `\bebit\b`)},
	{"Net Income", compileAll(`\bnet income\b`, `\bprofit for the year\b`, `\bprofit attributable\b`)},
	{"EPS", compileAll(`\bearnings per share\b`, `\beps\b`)},
}

// extendedVocabulary covers a full multi-period statement in the Indian
// GAAP presentation style. More specific labels precede the generic ones
// they would otherwise shadow (Total Income before Revenue's "total income"
// alternation, EBITDA before Operating Income's bare "ebit").
var extendedVocabulary = []lineItemPattern{
	{"Revenue from Operations", compileAll(`\brevenue from operations\b`, `\brevenue\b`, `\bsales\b`)},
	{"Other Income", compileAll(`\bother income\b`)},
	{"Total Income", compileAll(`\btotal income\b`, `\btotal revenue\b`)},
	{"Cost of Materials Consumed", compileAll(`\bcost of materials? consumed\b`)},
	{"Purchases of Stock-in-Trade", compileAll(`\bpurchases? of stock-?in-?trade\b`)},
	{"Change in Inventory", compileAll(`\bchanges? in inventor(?:y|ies)\b`)},
	{"Cost of Revenue", compileAll(`\bcost of revenue\b`, `\bcost of sales\b`)},
	{"Gross Profit", compileAll(`\bgross profit\b`)},
	{"Employee Benefits Expense", compileAll(`\bemployee benefits? expenses?\b`, `\bstaff costs?\b`)},
	{"EBITDA", compileAll(`\bebitda\b`)},
	{"Finance Costs", compileAll(`\bfinance costs?\b`, `\binterest expenses?\b`)},
	{"Depreciation and Amortization", compileAll(`\bdepreciation and amorti[sz]ation\b`, `\bdepreciation\b`)},
	{"Operating Expenses", compileAll(`\boperating expenses?\b`, `\boperating costs?\b`)},
	{"Other Expenses", compileAll(`\bother expenses?\b`)},
	{"Operating Income", compileAll(`\boperating income\b`, `\boperating profit\b`, `\bebit\b`)},
	{"Profit Before Tax", compileAll(`\bprofit before tax\b`, `\bincome before tax\b`)},
	{"Tax Expense", compileAll(`\btax expenses?\b`, `\bcurrent tax\b`, `\bdeferred tax\b`)},
	{"Profit After Tax", compileAll(`\bprofit after tax\b`, `\bnet income\b`, `\bprofit for the year\b`, `\bprofit attributable\b`)},
	{"EPS", compileAll(`\bearnings per share\b`, `\beps\b`)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+pattern))
	}
	return compiled
}

// Vocabulary returns the canonical label list for a profile, in match
// priority order. Shared with the LLM prompt so both extractors emit the
// same closed label set.
func Vocabulary(profile domain.Profile) []string {
	vocab := baseVocabulary
	if profile == domain.ProfileExtended {
		vocab = extendedVocabulary
	}
	labels := make([]string, 0, len(vocab))
	for _, item := range vocab {
		labels = append(labels, item.normalized)
	}
	return labels
}

func detectLineItem(vocab []lineItemPattern, line string) string {
	for _, item := range vocab {
		for _, pattern := range item.patterns {
			if pattern.MatchString(line) {
				return item.normalized
			}
		}
	}
	return ""
}

// ExtractNumbers pulls every numeric token from a line in left-to-right
// order, mapping parenthesized tokens to negatives.
func ExtractNumbers(line string) []float64 {
	var values []float64
	for _, token := range numericTokenRe.FindAllString(line, -1) {
		normalized := strings.ReplaceAll(token, ",", "")
		negative := strings.HasPrefix(normalized, "(") && strings.HasSuffix(normalized, ")")
		stripped := strings.Trim(normalized, "()")
		value, err := strconv.ParseFloat(stripped, 64)
		if err != nil {
			continue
		}
		if negative {
			value = -value
		}
		values = append(values, value)
	}
	return values
}

// ExtractRows runs the rule-based extractor over one document's text.
// Lines that match no vocabulary label, or carry no numeric token, are
// skipped outright. Rows whose line held more numeric tokens than the
// profile cap are truncated and flagged ambiguous.
func ExtractRows(profile domain.Profile, documentName, text string) []domain.StatementRow {
	vocab := baseVocabulary
	if profile == domain.ProfileExtended {
		vocab = extendedVocabulary
	}
	valueCap := profile.ValueCap()

	var rows []domain.StatementRow
	for _, line := range NormalizeLines(text) {
		label := detectLineItem(vocab, line)
		if label == "" {
			continue
		}
		values := ExtractNumbers(line)
		if len(values) == 0 {
			continue
		}

		ambiguity := ""
		confidence := 0.9
		if len(values) > valueCap {
			values = values[:valueCap]
			ambiguity = fmt.Sprintf("More than %d numeric values found in line", valueCap)
			confidence = 0.6
		}
		rows = append(rows, domain.StatementRow{
			DocumentName:       documentName,
			RawLine:            line,
			NormalizedLineItem: label,
			Values:             values,
			Ambiguity:          ambiguity,
			Confidence:         confidence,
		})
	}
	return rows
}
