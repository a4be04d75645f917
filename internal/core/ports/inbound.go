package ports

import (
	"context"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

// BatchExtractor is the inbound contract for extracting a batch of documents.
type BatchExtractor interface {
	Extract(ctx context.Context, docs []domain.SourceDocument, requested domain.Mode) (*domain.BatchResult, error)
}

// RunProcessor drives one submitted run end to end: extraction, workbook
// assembly, storage, and job bookkeeping.
type RunProcessor interface {
	SubmitRun(ctx context.Context, docs []domain.SourceDocument, requested domain.Mode) (*domain.Run, error)
	ProcessRunByID(ctx context.Context, runID string) error
}
