package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/extract"
	"github.com/finsheet-io/finsheet/internal/core/ports"
	"github.com/finsheet-io/finsheet/internal/core/validate"
)

// DefaultMaxUploadBytes caps the combined size of one batch's uploads.
const DefaultMaxUploadBytes = 30 << 20

type ExtractBatchUseCase struct {
	textExtractor  ports.TextExtractor
	llm            ports.StatementLLM
	profile        domain.Profile
	maxUploadBytes int64
	candidateLimit int
}

func NewExtractBatchUseCase(
	textExtractor ports.TextExtractor,
	llm ports.StatementLLM,
	profile domain.Profile,
	maxUploadBytes int64,
	candidateLimit int,
) *ExtractBatchUseCase {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if candidateLimit <= 0 {
		candidateLimit = extract.DefaultCandidateLineLimit
	}
	return &ExtractBatchUseCase{
		textExtractor:  textExtractor,
		llm:            llm,
		profile:        profile,
		maxUploadBytes: maxUploadBytes,
		candidateLimit: candidateLimit,
	}
}

// resolveMode maps the requested mode onto what this deployment can serve.
func (uc *ExtractBatchUseCase) resolveMode(requested domain.Mode) (domain.Mode, error) {
	switch requested {
	case domain.ModeRule:
		return domain.ModeRule, nil
	case domain.ModeGemini:
		if !uc.llm.Configured() {
			return "", domain.WrapError(domain.ErrModeUnavailable, "resolve mode", errGeminiUnavailable)
		}
		return domain.ModeGemini, nil
	default:
		if uc.llm.Configured() {
			return domain.ModeGemini, nil
		}
		return domain.ModeRule, nil
	}
}

var errGeminiUnavailable = errors.New("gemini mode requested but no api key is configured")

func (uc *ExtractBatchUseCase) checkBatch(docs []domain.SourceDocument) error {
	if len(docs) == 0 {
		return domain.WrapError(domain.ErrNoDocuments, "check batch", errors.New("empty upload set"))
	}
	var total int64
	for _, doc := range docs {
		size := doc.Size
		if size == 0 {
			size = int64(len(doc.Data))
		}
		total += size
	}
	if total > uc.maxUploadBytes {
		return domain.WrapError(domain.ErrPayloadTooLarge, "check batch",
			fmt.Errorf("total upload size %d exceeds limit %d", total, uc.maxUploadBytes))
	}
	return nil
}

// warningSet collects fallback warnings from concurrent per-document work.
type warningSet struct {
	mu       sync.Mutex
	warnings []string
}

func (s *warningSet) add(warning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, warning)
}

func (s *warningSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

func (uc *ExtractBatchUseCase) detectMetadata(documentName, text string) domain.StatementMetadata {
	metadata := domain.StatementMetadata{
		DocumentName: documentName,
		Years:        extract.DetectYears(text),
		Currency:     extract.DetectCurrency(text),
		Units:        extract.DetectUnits(text),
	}
	if uc.profile.HasPeriods() {
		metadata.Periods = extract.DetectPeriods(text)
	}
	return metadata
}

func (uc *ExtractBatchUseCase) extractWithRules(documentName, text string) domain.DocumentResult {
	return domain.DocumentResult{
		Rows:     extract.ExtractRows(uc.profile, documentName, text),
		Metadata: uc.detectMetadata(documentName, text),
	}
}

func (uc *ExtractBatchUseCase) extractWithLLM(ctx context.Context, doc domain.SourceDocument, text string) (domain.DocumentResult, error) {
	hints := uc.detectMetadata(doc.Name, text)
	candidates := extract.SelectCandidateLines(uc.profile, text, uc.candidateLimit)

	// Nothing to quote and nothing to attach: fail closed with the
	// heuristic metadata instead of issuing a near-empty prompt.
	if len(candidates) == 0 && len(doc.Data) == 0 {
		return domain.DocumentResult{Rows: nil, Metadata: hints}, nil
	}

	req := ports.LLMRequest{
		DocumentName:   doc.Name,
		CandidateLines: candidates,
		Hints:          hints,
	}
	if len(candidates) == 0 {
		req.RawDocument = doc.Data
	}
	return uc.llm.Extract(ctx, req)
}

// extractDocument runs one document end to end under the effective mode,
// applying the auto-mode fallback policy.
func (uc *ExtractBatchUseCase) extractDocument(
	ctx context.Context,
	doc domain.SourceDocument,
	requested, effective domain.Mode,
	warnings *warningSet,
) (domain.DocumentResult, error) {
	text, err := uc.textExtractor.ExtractText(ctx, doc)
	if err != nil {
		if requested == domain.ModeAuto || effective == domain.ModeRule {
			// Unreadable bytes still produce a best-effort empty result so
			// the document keeps its placeholder row and metadata slot.
			text = ""
		} else {
			return domain.DocumentResult{}, fmt.Errorf("extract text from %s: %w", doc.Name, err)
		}
	}

	if effective == domain.ModeRule {
		return uc.extractWithRules(doc.Name, text), nil
	}

	result, llmErr := uc.extractWithLLM(ctx, doc, text)
	if llmErr == nil {
		return result, nil
	}
	if requested == domain.ModeGemini {
		return domain.DocumentResult{}, llmErr
	}
	warnings.add(fmt.Sprintf("Gemini extraction failed for %s; fallback to rule extraction.", doc.Name))
	return uc.extractWithRules(doc.Name, text), nil
}

// ExtractDocument runs the pipeline for exactly one document and returns
// its rows, metadata, and any fallback warnings. Placeholder substitution
// and batch aggregation are the batch variant's concern.
func (uc *ExtractBatchUseCase) ExtractDocument(
	ctx context.Context,
	doc domain.SourceDocument,
	requested domain.Mode,
) (domain.DocumentResult, []string, error) {
	if err := uc.checkBatch([]domain.SourceDocument{doc}); err != nil {
		return domain.DocumentResult{}, nil, err
	}
	effective, err := uc.resolveMode(requested)
	if err != nil {
		return domain.DocumentResult{}, nil, err
	}

	warnings := &warningSet{}
	result, err := uc.extractDocument(ctx, doc, requested, effective, warnings)
	if err != nil {
		return domain.DocumentResult{}, nil, err
	}
	return result, warnings.list(), nil
}

// Extract runs the full batch pipeline: mode resolution, concurrent
// per-document extraction, placeholder substitution, aggregation, and the
// shape contract check. Results preserve input document order.
func (uc *ExtractBatchUseCase) Extract(ctx context.Context, docs []domain.SourceDocument, requested domain.Mode) (*domain.BatchResult, error) {
	if err := uc.checkBatch(docs); err != nil {
		return nil, err
	}
	effective, err := uc.resolveMode(requested)
	if err != nil {
		return nil, err
	}

	warnings := &warningSet{}
	results := make([]domain.DocumentResult, len(docs))
	errs := make([]error, len(docs))

	// Fan out per document. One document's failure must not cancel its
	// siblings, so each goroutine gets the batch context untouched.
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func(i int, doc domain.SourceDocument) {
			defer wg.Done()
			results[i], errs[i] = uc.extractDocument(ctx, doc, requested, effective, warnings)
		}(i, doc)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	batch := &domain.BatchResult{
		EffectiveMode: effective,
		Warnings:      warnings.list(),
	}
	for i, result := range results {
		rows := result.Rows
		if len(rows) == 0 {
			rows = []domain.StatementRow{domain.PlaceholderRow(docs[i].Name)}
		}
		batch.Rows = append(batch.Rows, rows...)
		batch.Metadata = append(batch.Metadata, result.Metadata)
	}

	if batch.Rows, err = validate.Rows(uc.profile, batch.Rows); err != nil {
		return nil, err
	}
	if batch.Metadata, err = validate.Metadata(uc.profile, batch.Metadata); err != nil {
		return nil, err
	}
	return batch, nil
}
