package workbook

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func cellValue(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	value, err := f.GetCellValue(sheet, cell)
	if err != nil {
		t.Fatalf("get %s!%s: %v", sheet, cell, err)
	}
	return value
}

func TestBuildEmptyBatchProducesWellFormedWorkbook(t *testing.T) {
	data, err := Build(domain.ProfileBase, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := openWorkbook(t, data)
	sheets := f.GetSheetList()
	if !reflect.DeepEqual(sheets, []string{"IncomeStatement"}) {
		t.Fatalf("expected single IncomeStatement sheet, got %v", sheets)
	}
	if got := cellValue(t, f, "IncomeStatement", "A1"); got != "Particulars" {
		t.Fatalf("expected Particulars header, got %q", got)
	}
	if got := cellValue(t, f, "IncomeStatement", "A2"); got != domain.NotFoundLineItem {
		t.Fatalf("expected NOT_FOUND row, got %q", got)
	}
}

func TestBuildSingleDocumentUsesSheet1AndPeriodHeaders(t *testing.T) {
	rows := []domain.StatementRow{
		{DocumentName: "annual.pdf", RawLine: "Revenue 100 200", NormalizedLineItem: "Revenue", Values: []float64{100, 200}, Confidence: 0.9},
	}
	metadata := []domain.StatementMetadata{
		{DocumentName: "annual.pdf", Periods: []string{"FY2025"}, Years: []string{"2025"}, Currency: "USD", Units: "millions"},
	}

	data, err := Build(domain.ProfileExtended, rows, metadata)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := openWorkbook(t, data)
	sheets := f.GetSheetList()
	if !reflect.DeepEqual(sheets, []string{"Sheet1", "Metadata"}) {
		t.Fatalf("expected Sheet1 plus Metadata, got %v", sheets)
	}

	// Two value columns: FY2025 from periods with a Value 2 placeholder for
	// the wider row.
	if got := cellValue(t, f, "Sheet1", "B1"); got != "FY2025" {
		t.Fatalf("expected FY2025 header, got %q", got)
	}
	if got := cellValue(t, f, "Sheet1", "C1"); got != "Value 2" {
		t.Fatalf("expected Value 2 placeholder header, got %q", got)
	}
	if got := cellValue(t, f, "Sheet1", "A2"); got != "Revenue" {
		t.Fatalf("expected Revenue label, got %q", got)
	}
	if got := cellValue(t, f, "Sheet1", "B2"); got != "100" {
		t.Fatalf("expected first value 100, got %q", got)
	}
	if got := cellValue(t, f, "Sheet1", "C2"); got != "200" {
		t.Fatalf("expected second value 200, got %q", got)
	}

	if got := cellValue(t, f, "Metadata", "A2"); got != "annual.pdf" {
		t.Fatalf("expected metadata row for annual.pdf, got %q", got)
	}
	if got := cellValue(t, f, "Metadata", "B2"); got != "FY2025" {
		t.Fatalf("expected joined periods, got %q", got)
	}
}

func TestBuildMultiDocumentDeduplicatesSheetNames(t *testing.T) {
	longName := "quarterly/results:with[unsafe]chars and a very long tail.pdf"
	metadata := []domain.StatementMetadata{
		{DocumentName: longName, Years: []string{"2025"}, Currency: "USD", Units: "unknown"},
		{DocumentName: longName + " copy", Years: []string{"2024"}, Currency: "USD", Units: "unknown"},
	}

	data, err := Build(domain.ProfileBase, nil, metadata)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := openWorkbook(t, data)
	sheets := f.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %v", sheets)
	}
	for _, sheet := range sheets {
		if len(sheet) > 31 {
			t.Fatalf("sheet name %q exceeds 31 chars", sheet)
		}
	}
	if sheets[0] == sheets[1] {
		t.Fatalf("expected deduplicated names, got %v", sheets)
	}

	// Documents without rows still get a NOT_FOUND placeholder row.
	if got := cellValue(t, f, sheets[0], "A2"); got != domain.NotFoundLineItem {
		t.Fatalf("expected NOT_FOUND placeholder, got %q", got)
	}
}

func TestBuildGroupsRowsByDocument(t *testing.T) {
	rows := []domain.StatementRow{
		{DocumentName: "a.pdf", NormalizedLineItem: "Revenue", Values: []float64{1}, Confidence: 0.9},
		{DocumentName: "b.pdf", NormalizedLineItem: "EPS", Values: []float64{2}, Confidence: 0.9},
		{DocumentName: "a.pdf", NormalizedLineItem: "Net Income", Values: []float64{3}, Confidence: 0.9},
	}

	data, err := Build(domain.ProfileBase, rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := openWorkbook(t, data)
	sheets := f.GetSheetList()
	if !reflect.DeepEqual(sheets, []string{"a.pdf", "b.pdf"}) {
		t.Fatalf("expected per-document sheets, got %v", sheets)
	}
	if got := cellValue(t, f, "a.pdf", "A3"); got != "Net Income" {
		t.Fatalf("expected second a.pdf row, got %q", got)
	}
	if got := cellValue(t, f, "b.pdf", "A2"); got != "EPS" {
		t.Fatalf("expected b.pdf row, got %q", got)
	}
}

func TestPeriodHeadersClampAndFallback(t *testing.T) {
	headers := periodHeaders(nil, 0)
	if !reflect.DeepEqual(headers, []string{"Value 1"}) {
		t.Fatalf("expected single placeholder, got %v", headers)
	}

	headers = periodHeaders([]string{"FY2025", "FY2024"}, 10)
	if len(headers) != 8 {
		t.Fatalf("expected clamp at 8, got %d", len(headers))
	}
	if headers[0] != "FY2025" || headers[2] != "Value 3" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestSanitizeSheetName(t *testing.T) {
	if got := sanitizeSheetName("q1/results:final*[draft]?.pdf"); len(got) > 31 || got == "" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
	if got := sanitizeSheetName("///"); got != "IncomeStatement" {
		t.Fatalf("expected fallback name, got %q", got)
	}
}
