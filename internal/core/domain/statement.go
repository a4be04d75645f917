package domain

// Mode selects the extraction strategy for a batch.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeGemini Mode = "gemini"
	ModeRule   Mode = "rule"
)

// ParseMode maps a raw query value onto the closed mode set.
// Unrecognized values fall back to auto.
func ParseMode(value string) Mode {
	switch Mode(value) {
	case ModeGemini, ModeRule, ModeAuto:
		return Mode(value)
	default:
		return ModeAuto
	}
}

// Profile bounds the shape of extracted rows and metadata.
type Profile string

const (
	// ProfileBase is the narrow income-statement profile: 7 canonical
	// labels, at most 4 values per row, year metadata only.
	ProfileBase Profile = "base"
	// ProfileExtended covers multi-period Indian-GAAP style statements:
	// 19 canonical labels, at most 8 values per row, period labels.
	ProfileExtended Profile = "extended"
)

func ParseProfile(value string) Profile {
	if Profile(value) == ProfileBase {
		return ProfileBase
	}
	return ProfileExtended
}

// ValueCap is the maximum number of per-period values a row may carry.
func (p Profile) ValueCap() int {
	if p == ProfileBase {
		return 4
	}
	return 8
}

// HasPeriods reports whether the profile tracks period labels beyond years.
func (p Profile) HasPeriods() bool {
	return p == ProfileExtended
}

// NotFoundLineItem is the sentinel label for documents that produced no rows.
const NotFoundLineItem = "NOT_FOUND"

// NotFoundAmbiguity annotates the placeholder row.
const NotFoundAmbiguity = "No recognizable income-statement rows were extracted"

// StatementRow is one detected financial line item within one document.
type StatementRow struct {
	DocumentName       string    `json:"documentName"`
	RawLine            string    `json:"rawLine"`
	NormalizedLineItem string    `json:"normalizedLineItem"`
	Values             []float64 `json:"values"`
	Ambiguity          string    `json:"ambiguity"`
	Confidence         float64   `json:"confidence"`
}

// StatementMetadata captures per-document reporting facts.
type StatementMetadata struct {
	DocumentName string   `json:"documentName"`
	Periods      []string `json:"periods"`
	Years        []string `json:"years"`
	Currency     string   `json:"currency"`
	Units        string   `json:"units"`
}

// PlaceholderRow guarantees every document contributes at least one row.
func PlaceholderRow(documentName string) StatementRow {
	return StatementRow{
		DocumentName:       documentName,
		RawLine:            "",
		NormalizedLineItem: NotFoundLineItem,
		Values:             []float64{},
		Ambiguity:          NotFoundAmbiguity,
		Confidence:         0,
	}
}

// SourceDocument is one uploaded document prior to extraction.
type SourceDocument struct {
	Name string
	Data []byte
	Size int64
}

// DocumentResult pairs a document's extracted rows with its metadata.
type DocumentResult struct {
	Rows     []StatementRow
	Metadata StatementMetadata
}

// BatchResult aggregates per-document results across an extraction batch,
// preserving input document order.
type BatchResult struct {
	Rows          []StatementRow
	Metadata      []StatementMetadata
	EffectiveMode Mode
	Warnings      []string
}
