package validate

import (
	"strings"
	"testing"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

func validRow() domain.StatementRow {
	return domain.StatementRow{
		DocumentName:       "doc.pdf",
		RawLine:            "Revenue 100",
		NormalizedLineItem: "Revenue",
		Values:             []float64{100},
		Ambiguity:          "",
		Confidence:         0.9,
	}
}

func validMetadata() domain.StatementMetadata {
	return domain.StatementMetadata{
		DocumentName: "doc.pdf",
		Periods:      []string{"FY2025"},
		Years:        []string{"2025"},
		Currency:     "USD",
		Units:        "millions",
	}
}

func TestRowsAcceptsPlaceholder(t *testing.T) {
	rows := []domain.StatementRow{validRow(), domain.PlaceholderRow("other.pdf")}

	got, err := Rows(domain.ProfileExtended, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected rows returned unchanged, got %d", len(got))
	}
}

func TestRowsRejectsConfidenceOutOfRange(t *testing.T) {
	row := validRow()
	row.Confidence = 1.5

	_, err := Rows(domain.ProfileExtended, []domain.StatementRow{row})
	if !domain.IsKind(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "confidence") {
		t.Fatalf("expected error to name the confidence field, got %v", err)
	}
}

func TestRowsRejectsValuesOverProfileCap(t *testing.T) {
	row := validRow()
	row.Values = []float64{1, 2, 3, 4, 5}

	if _, err := Rows(domain.ProfileBase, []domain.StatementRow{row}); !domain.IsKind(err, domain.ErrContractViolation) {
		t.Fatalf("expected base profile cap violation, got %v", err)
	}
	if _, err := Rows(domain.ProfileExtended, []domain.StatementRow{row}); err != nil {
		t.Fatalf("extended profile should accept 5 values, got %v", err)
	}
}

func TestRowsRejectsEmptyDocumentName(t *testing.T) {
	row := validRow()
	row.DocumentName = ""

	if _, err := Rows(domain.ProfileExtended, []domain.StatementRow{row}); !domain.IsKind(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestMetadataBaseProfileRequiresFourDigitYears(t *testing.T) {
	md := validMetadata()
	md.Periods = nil
	md.Years = []string{"24"}

	_, err := Metadata(domain.ProfileBase, []domain.StatementMetadata{md})
	if !domain.IsKind(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestMetadataExtendedProfileRequiresPeriods(t *testing.T) {
	md := validMetadata()
	md.Periods = nil

	if _, err := Metadata(domain.ProfileExtended, []domain.StatementMetadata{md}); !domain.IsKind(err, domain.ErrContractViolation) {
		t.Fatalf("expected missing periods violation, got %v", err)
	}

	md.Periods = []string{"FY2025"}
	if _, err := Metadata(domain.ProfileExtended, []domain.StatementMetadata{md}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetadataValid(t *testing.T) {
	md := validMetadata()
	md.Periods = nil
	md.Years = []string{"2025", "2024"}

	got, err := Metadata(domain.ProfileBase, []domain.StatementMetadata{md})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected metadata returned unchanged, got %d", len(got))
	}
}
