package ports

import (
	"context"
	"io"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

// TextExtractor turns uploaded document bytes into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc domain.SourceDocument) (string, error)
}

// LLMRequest carries everything the model needs for one document: the
// bounded candidate lines, the heuristic hints used both as prompt context
// and as the merge fallback, and the raw bytes for image-grounded reads
// when no candidate lines exist.
type LLMRequest struct {
	DocumentName   string
	CandidateLines []string
	Hints          domain.StatementMetadata
	RawDocument    []byte
}

// StatementLLM extracts statement rows with an external generative model.
// Implementations return the same row/metadata shape as the rule extractor.
type StatementLLM interface {
	Extract(ctx context.Context, req LLMRequest) (domain.DocumentResult, error)
	Configured() bool
}

// RunRepository persists run and job bookkeeping.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.Run, jobs []domain.Job) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	ListRunJobs(ctx context.Context, runID string) ([]domain.Job, error)
	MarkJobProcessing(ctx context.Context, jobID string) error
	MarkJobCompleted(ctx context.Context, job *domain.Job) error
	MarkRemainingJobsFailed(ctx context.Context, runID, message string) error
	CompleteRun(ctx context.Context, runID string, effectiveMode domain.Mode, warnings []string, workbookPath string, workbookBytes int64) error
	FailRun(ctx context.Context, runID, message string) error
	Summary(ctx context.Context) (domain.RunSummary, error)
}

// ObjectStorage stores source documents and output workbooks.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RunQueue publishes/consumes queued extraction runs.
type RunQueue interface {
	PublishRunQueued(ctx context.Context, runID string) error
	SubscribeRunQueued(ctx context.Context, handler func(context.Context, string) error) error
}
