// Package pdftext turns uploaded document bytes into plain text for the
// extraction pipeline.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

var pdfMagic = []byte("%PDF-")

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// ExtractText returns a document's text content. PDF uploads are parsed
// page by page; anything else is treated as UTF-8 plain text.
func (e *Extractor) ExtractText(ctx context.Context, doc domain.SourceDocument) (string, error) {
	if bytes.HasPrefix(doc.Data, pdfMagic) {
		return extractPDF(ctx, doc.Data)
	}
	if utf8.Valid(doc.Data) {
		return string(doc.Data), nil
	}
	// Binary but not a PDF: salvage whatever decodes.
	return strings.ToValidUTF8(string(doc.Data), ""), nil
}

func extractPDF(ctx context.Context, data []byte) (text string, err error) {
	// The underlying reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// Carry on with the pages that do parse; scanned or damaged
			// pages simply contribute no lines.
			continue
		}
		for _, row := range rows {
			for i, word := range row.Content {
				if i > 0 {
					builder.WriteString(" ")
				}
				builder.WriteString(word.S)
			}
			builder.WriteString("\n")
		}
	}
	return builder.String(), nil
}
