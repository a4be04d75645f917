package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/ports"
	"github.com/finsheet-io/finsheet/internal/core/workbook"
)

// ProcessRunUseCase drives a persisted extraction run end to end: store
// the uploads, queue the run, and later load it, extract, assemble the
// workbook, and record per-job outcomes.
type ProcessRunUseCase struct {
	repo      ports.RunRepository
	storage   ports.ObjectStorage
	queue     ports.RunQueue
	extractor ports.BatchExtractor
	profile   domain.Profile
}

func NewProcessRunUseCase(
	repo ports.RunRepository,
	storage ports.ObjectStorage,
	queue ports.RunQueue,
	extractor ports.BatchExtractor,
	profile domain.Profile,
) *ProcessRunUseCase {
	return &ProcessRunUseCase{
		repo:      repo,
		storage:   storage,
		queue:     queue,
		extractor: extractor,
		profile:   profile,
	}
}

func documentKey(runID, fileName string) string {
	return path.Join("runs", runID, "documents", fileName)
}

func workbookKey(runID string) string {
	return path.Join("runs", runID, "workbook.xlsx")
}

// SubmitRun persists the uploads and run bookkeeping, then queues the run
// for the worker. Input-shape failures surface immediately so the caller
// gets a 4xx instead of a run that can only fail later.
func (uc *ProcessRunUseCase) SubmitRun(ctx context.Context, docs []domain.SourceDocument, requested domain.Mode) (*domain.Run, error) {
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrNoDocuments, "submit run", errEmptyUploadSet)
	}

	now := time.Now().UTC()
	run := &domain.Run{
		ID:            uuid.NewString(),
		RequestedMode: requested,
		Status:        domain.RunStatusQueued,
		TotalFiles:    len(docs),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	jobs := make([]domain.Job, 0, len(docs))
	for _, doc := range docs {
		size := doc.Size
		if size == 0 {
			size = int64(len(doc.Data))
		}
		run.TotalUploadBytes += size

		key := documentKey(run.ID, doc.Name)
		if err := uc.storage.Save(ctx, key, bytes.NewReader(doc.Data)); err != nil {
			return nil, fmt.Errorf("store document %s: %w", doc.Name, err)
		}
		jobs = append(jobs, domain.Job{
			ID:          uuid.NewString(),
			RunID:       run.ID,
			FileName:    doc.Name,
			SizeBytes:   size,
			StoragePath: key,
			Status:      domain.JobStatusQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := uc.repo.CreateRun(ctx, run, jobs); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := uc.queue.PublishRunQueued(ctx, run.ID); err != nil {
		failMsg := fmt.Sprintf("queue publish failed: %v", err)
		if failErr := uc.repo.FailRun(ctx, run.ID, failMsg); failErr != nil {
			return nil, fmt.Errorf("publish run: %w; mark failed: %v", err, failErr)
		}
		return nil, fmt.Errorf("publish run: %w", err)
	}
	return run, nil
}

var errEmptyUploadSet = fmt.Errorf("empty upload set")

// ProcessRunByID loads a queued run's documents from storage, extracts
// them as one batch, and persists the workbook and per-job results.
func (uc *ProcessRunUseCase) ProcessRunByID(ctx context.Context, runID string) error {
	run, err := uc.repo.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	jobs, err := uc.repo.ListRunJobs(ctx, runID)
	if err != nil {
		return uc.failRun(ctx, runID, fmt.Errorf("load jobs: %w", err))
	}

	docs := make([]domain.SourceDocument, 0, len(jobs))
	for _, job := range jobs {
		if err := uc.repo.MarkJobProcessing(ctx, job.ID); err != nil {
			return uc.failRun(ctx, runID, fmt.Errorf("mark job %s processing: %w", job.ID, err))
		}
		data, err := uc.loadDocument(ctx, job.StoragePath)
		if err != nil {
			return uc.failRun(ctx, runID, fmt.Errorf("load document %s: %w", job.FileName, err))
		}
		docs = append(docs, domain.SourceDocument{Name: job.FileName, Data: data, Size: job.SizeBytes})
	}

	batch, err := uc.extractor.Extract(ctx, docs, run.RequestedMode)
	if err != nil {
		return uc.failRun(ctx, runID, err)
	}

	workbookBytes, err := workbook.Build(uc.profile, batch.Rows, batch.Metadata)
	if err != nil {
		return uc.failRun(ctx, runID, fmt.Errorf("build workbook: %w", err))
	}
	wbKey := workbookKey(runID)
	if err := uc.storage.Save(ctx, wbKey, bytes.NewReader(workbookBytes)); err != nil {
		return uc.failRun(ctx, runID, fmt.Errorf("store workbook: %w", err))
	}

	metadataByDocument := make(map[string]domain.StatementMetadata, len(batch.Metadata))
	for _, md := range batch.Metadata {
		metadataByDocument[md.DocumentName] = md
	}
	rowCounts := make(map[string]int, len(jobs))
	for _, row := range batch.Rows {
		if row.NormalizedLineItem != domain.NotFoundLineItem {
			rowCounts[row.DocumentName]++
		}
	}

	for i := range jobs {
		job := jobs[i]
		md := metadataByDocument[job.FileName]
		job.Status = domain.JobStatusCompleted
		job.Years = md.Years
		job.Currency = md.Currency
		job.Units = md.Units
		job.ExtractedRowCount = rowCounts[job.FileName]
		job.Warning = warningFor(batch.Warnings, job.FileName)
		if err := uc.repo.MarkJobCompleted(ctx, &job); err != nil {
			return uc.failRun(ctx, runID, fmt.Errorf("mark job %s completed: %w", job.ID, err))
		}
	}

	if err := uc.repo.CompleteRun(ctx, runID, batch.EffectiveMode, batch.Warnings, wbKey, int64(len(workbookBytes))); err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	return nil
}

func (uc *ProcessRunUseCase) loadDocument(ctx context.Context, key string) ([]byte, error) {
	reader, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// failRun records the failure on the run and its unfinished jobs; the
// original error always wins over bookkeeping errors.
func (uc *ProcessRunUseCase) failRun(ctx context.Context, runID string, cause error) error {
	message := cause.Error()
	if err := uc.repo.MarkRemainingJobsFailed(ctx, runID, message); err != nil {
		return fmt.Errorf("%w; mark jobs failed: %v", cause, err)
	}
	if err := uc.repo.FailRun(ctx, runID, message); err != nil {
		return fmt.Errorf("%w; mark run failed: %v", cause, err)
	}
	return cause
}

// warningFor finds the fallback warning that names a specific file.
func warningFor(warnings []string, fileName string) string {
	for _, warning := range warnings {
		if strings.Contains(warning, fileName) {
			return warning
		}
	}
	return ""
}
