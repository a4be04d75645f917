// Package workbook assembles the XLSX export from validated rows and
// metadata.
package workbook

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

const (
	maxValueColumns  = 8
	maxSheetNameLen  = 31
	fallbackSheet    = "IncomeStatement"
	metadataSheet    = "Metadata"
	headerFillColor  = "5B1E44"
	headerFontColor  = "FFFFFF"
	particularsWidth = 42
	valueColumnWidth = 14
)

var unsafeSheetCharRe = regexp.MustCompile(`[\\/*?:\[\]]`)

// sanitizeSheetName strips characters the XLSX format forbids in sheet
// names and bounds the result to 31 characters.
func sanitizeSheetName(value string) string {
	cleaned := strings.TrimSpace(unsafeSheetCharRe.ReplaceAllString(value, " "))
	if cleaned == "" {
		cleaned = fallbackSheet
	}
	if len(cleaned) > maxSheetNameLen {
		cleaned = cleaned[:maxSheetNameLen]
	}
	return cleaned
}

// distinctDocuments preserves metadata-then-rows first-seen order.
func distinctDocuments(rows []domain.StatementRow, metadata []domain.StatementMetadata) []string {
	seen := make(map[string]bool)
	var ordered []string
	for _, item := range metadata {
		if !seen[item.DocumentName] {
			seen[item.DocumentName] = true
			ordered = append(ordered, item.DocumentName)
		}
	}
	for _, item := range rows {
		if !seen[item.DocumentName] {
			seen[item.DocumentName] = true
			ordered = append(ordered, item.DocumentName)
		}
	}
	return ordered
}

// periodHeaders sizes the value columns to the wider of the detected
// periods and the widest row, clamped to [1, 8], filling gaps with
// "Value N" placeholders.
func periodHeaders(periods []string, maxRowValues int) []string {
	count := maxRowValues
	if len(periods) > count {
		count = len(periods)
	}
	if count > maxValueColumns {
		count = maxValueColumns
	}
	if count < 1 {
		count = 1
	}
	headers := make([]string, count)
	for i := range headers {
		if i < len(periods) && periods[i] != "" {
			headers[i] = periods[i]
		} else {
			headers[i] = fmt.Sprintf("Value %d", i+1)
		}
	}
	return headers
}

type builder struct {
	file        *excelize.File
	headerStyle int
}

func newBuilder() (*builder, error) {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: headerFontColor},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFillColor}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	return &builder{file: f, headerStyle: style}, nil
}

// ensureSheet reuses the workbook's default sheet for the first call and
// creates new sheets afterwards.
func (b *builder) ensureSheet(name string, first bool) error {
	if first {
		if current := b.file.GetSheetName(0); current != name {
			return b.file.SetSheetName(current, name)
		}
		return nil
	}
	_, err := b.file.NewSheet(name)
	return err
}

func (b *builder) writeHeaderRow(sheet string, headers []string) error {
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := b.file.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := b.file.SetCellStyle(sheet, "A1", last, b.headerStyle); err != nil {
		return err
	}
	return b.file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (b *builder) writeDocumentSheet(sheet string, rowGroup []domain.StatementRow, periods []string) error {
	maxRowValues := 0
	for _, row := range rowGroup {
		if len(row.Values) > maxRowValues {
			maxRowValues = len(row.Values)
		}
	}
	headers := periodHeaders(periods, maxRowValues)

	columns := append([]string{"Particulars"}, headers...)
	if err := b.writeHeaderRow(sheet, columns); err != nil {
		return err
	}
	if err := b.file.SetColWidth(sheet, "A", "A", particularsWidth); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	if err := b.file.SetColWidth(sheet, "B", lastCol, valueColumnWidth); err != nil {
		return err
	}

	if len(rowGroup) == 0 {
		cell, err := excelize.CoordinatesToCellName(1, 2)
		if err != nil {
			return err
		}
		return b.file.SetCellValue(sheet, cell, domain.NotFoundLineItem)
	}

	for i, row := range rowGroup {
		rowIndex := i + 2
		cell, err := excelize.CoordinatesToCellName(1, rowIndex)
		if err != nil {
			return err
		}
		if err := b.file.SetCellValue(sheet, cell, row.NormalizedLineItem); err != nil {
			return err
		}
		for col := 0; col < len(headers) && col < len(row.Values); col++ {
			cell, err := excelize.CoordinatesToCellName(col+2, rowIndex)
			if err != nil {
				return err
			}
			if err := b.file.SetCellValue(sheet, cell, row.Values[col]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) writeMetadataSheet(metadata []domain.StatementMetadata) error {
	if _, err := b.file.NewSheet(metadataSheet); err != nil {
		return err
	}
	headers := []string{"Document", "Detected Periods", "Detected Years", "Detected Currency", "Detected Units"}
	if err := b.writeHeaderRow(metadataSheet, headers); err != nil {
		return err
	}
	for i, item := range metadata {
		values := []any{
			item.DocumentName,
			strings.Join(item.Periods, ", "),
			strings.Join(item.Years, ", "),
			item.Currency,
			item.Units,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := b.file.SetCellValue(metadataSheet, cell, value); err != nil {
				return err
			}
		}
	}
	return b.file.SetColWidth(metadataSheet, "A", "E", 28)
}

// Build assembles one XLSX workbook: one sheet per source document plus,
// for period-aware profiles, a Metadata sheet. An empty batch still yields
// a well-formed single-sheet workbook.
func Build(profile domain.Profile, rows []domain.StatementRow, metadata []domain.StatementMetadata) ([]byte, error) {
	b, err := newBuilder()
	if err != nil {
		return nil, err
	}

	documents := distinctDocuments(rows, metadata)
	if len(documents) == 0 {
		if err := b.ensureSheet(fallbackSheet, true); err != nil {
			return nil, err
		}
		if err := b.writeHeaderRow(fallbackSheet, []string{"Particulars"}); err != nil {
			return nil, err
		}
		if err := b.file.SetCellValue(fallbackSheet, "A2", domain.NotFoundLineItem); err != nil {
			return nil, err
		}
	} else {
		metadataByDocument := make(map[string]domain.StatementMetadata, len(metadata))
		for _, item := range metadata {
			metadataByDocument[item.DocumentName] = item
		}

		usedNames := make(map[string]bool)
		for i, documentName := range documents {
			base := sanitizeSheetName(documentName)
			if len(documents) == 1 {
				base = "Sheet1"
			}
			name := base
			for suffix := 2; usedNames[name]; suffix++ {
				tail := fmt.Sprintf("_%d", suffix)
				trimmed := base
				if len(trimmed) > maxSheetNameLen-len(tail) {
					trimmed = trimmed[:maxSheetNameLen-len(tail)]
				}
				name = trimmed + tail
			}
			usedNames[name] = true

			if err := b.ensureSheet(name, i == 0); err != nil {
				return nil, err
			}

			var rowGroup []domain.StatementRow
			for _, row := range rows {
				if row.DocumentName == documentName {
					rowGroup = append(rowGroup, row)
				}
			}
			if err := b.writeDocumentSheet(name, rowGroup, metadataByDocument[documentName].Periods); err != nil {
				return nil, err
			}
		}
	}

	if profile.HasPeriods() {
		if err := b.writeMetadataSheet(metadata); err != nil {
			return nil, err
		}
	}

	b.file.SetActiveSheet(0)
	buf, err := b.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
