package gemini

import (
	"strings"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/extract"
)

const defaultConfidence = 0.7

// clampConfidence bounds model-reported confidence to [0, 1] and fills in
// a neutral default when the model omitted it.
func clampConfidence(value *float64) float64 {
	if value == nil {
		return defaultConfidence
	}
	if *value < 0 {
		return 0
	}
	if *value > 1 {
		return 1
	}
	return *value
}

// mergeResult folds the parsed model output over the heuristic hints.
// Model-provided lists win only when non-empty; currency and units are
// case-normalized the same way regardless of source.
func mergeResult(documentName string, parsed llmResponse, hints domain.StatementMetadata) domain.DocumentResult {
	periods := hints.Periods
	if len(parsed.Periods) > 0 {
		periods = parsed.Periods
	}
	years := hints.Years
	if len(parsed.Years) > 0 {
		years = parsed.Years
	}

	currency := parsed.Currency
	if currency == "" {
		currency = hints.Currency
	}
	if currency == "" {
		currency = extract.CurrencyUnknown
	}
	units := parsed.Units
	if units == "" {
		units = hints.Units
	}
	if units == "" {
		units = extract.UnitsUnknown
	}

	rows := make([]domain.StatementRow, 0, len(parsed.LineItems))
	for _, item := range parsed.LineItems {
		values := item.Values
		if values == nil {
			values = []float64{}
		}
		rows = append(rows, domain.StatementRow{
			DocumentName:       documentName,
			RawLine:            item.RawLine,
			NormalizedLineItem: item.NormalizedLineItem,
			Values:             values,
			Ambiguity:          item.Ambiguity,
			Confidence:         clampConfidence(item.Confidence),
		})
	}

	return domain.DocumentResult{
		Rows: rows,
		Metadata: domain.StatementMetadata{
			DocumentName: documentName,
			Periods:      periods,
			Years:        years,
			Currency:     strings.ToUpper(currency),
			Units:        strings.ToLower(units),
		},
	}
}
