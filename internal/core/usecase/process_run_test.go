package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/ports"
)

type fakeRunRepository struct {
	run  *domain.Run
	jobs []domain.Job

	processing     []string
	completed      []domain.Job
	failedRunMsg   string
	failedJobsMsg  string
	completedRunID string
	completedMode  domain.Mode
	completedWarns []string
	workbookPath   string
	workbookBytes  int64
	createRunErr   error
	getRunErr      error
}

func (f *fakeRunRepository) CreateRun(_ context.Context, run *domain.Run, jobs []domain.Job) error {
	if f.createRunErr != nil {
		return f.createRunErr
	}
	f.run = run
	f.jobs = jobs
	return nil
}

func (f *fakeRunRepository) GetRun(_ context.Context, runID string) (*domain.Run, error) {
	if f.getRunErr != nil {
		return nil, f.getRunErr
	}
	if f.run == nil || f.run.ID != runID {
		return nil, domain.ErrRunNotFound
	}
	return f.run, nil
}

func (f *fakeRunRepository) ListRuns(context.Context, int) ([]domain.Run, error) {
	if f.run == nil {
		return nil, nil
	}
	return []domain.Run{*f.run}, nil
}

func (f *fakeRunRepository) ListRunJobs(_ context.Context, runID string) ([]domain.Job, error) {
	var jobs []domain.Job
	for _, job := range f.jobs {
		if job.RunID == runID {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (f *fakeRunRepository) MarkJobProcessing(_ context.Context, jobID string) error {
	f.processing = append(f.processing, jobID)
	return nil
}

func (f *fakeRunRepository) MarkJobCompleted(_ context.Context, job *domain.Job) error {
	f.completed = append(f.completed, *job)
	return nil
}

func (f *fakeRunRepository) MarkRemainingJobsFailed(_ context.Context, _, message string) error {
	f.failedJobsMsg = message
	return nil
}

func (f *fakeRunRepository) CompleteRun(_ context.Context, runID string, mode domain.Mode, warnings []string, workbookPath string, workbookBytes int64) error {
	f.completedRunID = runID
	f.completedMode = mode
	f.completedWarns = warnings
	f.workbookPath = workbookPath
	f.workbookBytes = workbookBytes
	return nil
}

func (f *fakeRunRepository) FailRun(_ context.Context, _, message string) error {
	f.failedRunMsg = message
	return nil
}

func (f *fakeRunRepository) Summary(context.Context) (domain.RunSummary, error) {
	return domain.RunSummary{}, nil
}

type fakeStorage struct {
	objects map[string][]byte
	saveErr error
}

func (f *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = content
	return nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

type fakeQueue struct {
	published  []string
	publishErr error
}

func (f *fakeQueue) PublishRunQueued(_ context.Context, runID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, runID)
	return nil
}

func (f *fakeQueue) SubscribeRunQueued(context.Context, func(context.Context, string) error) error {
	return nil
}

type fakeBatchExtractor struct {
	batch *domain.BatchResult
	err   error
	docs  []domain.SourceDocument
}

func (f *fakeBatchExtractor) Extract(_ context.Context, docs []domain.SourceDocument, _ domain.Mode) (*domain.BatchResult, error) {
	f.docs = docs
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

var _ ports.BatchExtractor = (*fakeBatchExtractor)(nil)

func TestSubmitRunPersistsAndQueues(t *testing.T) {
	repo := &fakeRunRepository{}
	storage := &fakeStorage{}
	queue := &fakeQueue{}
	uc := NewProcessRunUseCase(repo, storage, queue, &fakeBatchExtractor{}, domain.ProfileExtended)

	docs := []domain.SourceDocument{
		{Name: "a.pdf", Data: []byte("one")},
		{Name: "b.pdf", Data: []byte("three")},
	}
	run, err := uc.SubmitRun(context.Background(), docs, domain.ModeAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.RunStatusQueued || run.TotalFiles != 2 || run.TotalUploadBytes != 8 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(repo.jobs) != 2 || repo.jobs[0].StoragePath != "runs/"+run.ID+"/documents/a.pdf" {
		t.Fatalf("unexpected jobs %+v", repo.jobs)
	}
	if _, ok := storage.objects[repo.jobs[1].StoragePath]; !ok {
		t.Fatalf("expected second document stored, have %v", storage.objects)
	}
	if len(queue.published) != 1 || queue.published[0] != run.ID {
		t.Fatalf("expected run queued, got %v", queue.published)
	}
}

func TestSubmitRunRejectsEmptySet(t *testing.T) {
	uc := NewProcessRunUseCase(&fakeRunRepository{}, &fakeStorage{}, &fakeQueue{}, &fakeBatchExtractor{}, domain.ProfileExtended)

	if _, err := uc.SubmitRun(context.Background(), nil, domain.ModeAuto); !domain.IsKind(err, domain.ErrNoDocuments) {
		t.Fatalf("expected no-documents error, got %v", err)
	}
}

func TestSubmitRunPublishFailureFailsRun(t *testing.T) {
	repo := &fakeRunRepository{}
	queue := &fakeQueue{publishErr: errors.New("nats down")}
	uc := NewProcessRunUseCase(repo, &fakeStorage{}, queue, &fakeBatchExtractor{}, domain.ProfileExtended)

	_, err := uc.SubmitRun(context.Background(), []domain.SourceDocument{{Name: "a.pdf", Data: []byte("x")}}, domain.ModeAuto)
	if err == nil {
		t.Fatalf("expected publish error")
	}
	if !strings.Contains(repo.failedRunMsg, "nats down") {
		t.Fatalf("expected run marked failed, got %q", repo.failedRunMsg)
	}
}

func seedRun(repo *fakeRunRepository, storage *fakeStorage) {
	repo.run = &domain.Run{ID: "run-1", RequestedMode: domain.ModeAuto, Status: domain.RunStatusQueued}
	repo.jobs = []domain.Job{
		{ID: "job-1", RunID: "run-1", FileName: "a.txt", StoragePath: "runs/run-1/documents/a.txt", Status: domain.JobStatusQueued},
	}
	storage.objects = map[string][]byte{
		"runs/run-1/documents/a.txt": []byte("Revenue 100\n"),
	}
}

func TestProcessRunByIDCompletesRunAndJobs(t *testing.T) {
	repo := &fakeRunRepository{}
	storage := &fakeStorage{}
	seedRun(repo, storage)

	extractor := &fakeBatchExtractor{batch: &domain.BatchResult{
		Rows: []domain.StatementRow{
			{DocumentName: "a.txt", NormalizedLineItem: "Revenue", Values: []float64{100}, Confidence: 0.9},
		},
		Metadata: []domain.StatementMetadata{
			{DocumentName: "a.txt", Periods: []string{"FY2025"}, Years: []string{"2025"}, Currency: "USD", Units: "millions"},
		},
		EffectiveMode: domain.ModeRule,
		Warnings:      []string{"Gemini extraction failed for a.txt; fallback to rule extraction."},
	}}
	uc := NewProcessRunUseCase(repo, storage, &fakeQueue{}, extractor, domain.ProfileExtended)

	if err := uc.ProcessRunByID(context.Background(), "run-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.processing) != 1 || repo.processing[0] != "job-1" {
		t.Fatalf("expected job marked processing, got %v", repo.processing)
	}
	if len(repo.completed) != 1 {
		t.Fatalf("expected job completed, got %+v", repo.completed)
	}
	job := repo.completed[0]
	if job.ExtractedRowCount != 1 || job.Currency != "USD" || job.Warning == "" {
		t.Fatalf("unexpected completed job %+v", job)
	}
	if repo.completedRunID != "run-1" || repo.completedMode != domain.ModeRule {
		t.Fatalf("expected run completed, got %q mode %q", repo.completedRunID, repo.completedMode)
	}
	if repo.workbookPath != "runs/run-1/workbook.xlsx" || repo.workbookBytes == 0 {
		t.Fatalf("unexpected workbook record %q %d", repo.workbookPath, repo.workbookBytes)
	}
	if _, ok := storage.objects["runs/run-1/workbook.xlsx"]; !ok {
		t.Fatalf("expected workbook stored")
	}
	if len(extractor.docs) != 1 || extractor.docs[0].Name != "a.txt" {
		t.Fatalf("expected stored document handed to extractor, got %+v", extractor.docs)
	}
}

func TestProcessRunByIDExtractionFailureFailsRun(t *testing.T) {
	repo := &fakeRunRepository{}
	storage := &fakeStorage{}
	seedRun(repo, storage)

	cause := domain.WrapError(domain.ErrModeUnavailable, "resolve mode", errors.New("no key"))
	uc := NewProcessRunUseCase(repo, storage, &fakeQueue{}, &fakeBatchExtractor{err: cause}, domain.ProfileExtended)

	err := uc.ProcessRunByID(context.Background(), "run-1")
	if !domain.IsKind(err, domain.ErrModeUnavailable) {
		t.Fatalf("expected original cause returned, got %v", err)
	}
	if repo.failedRunMsg == "" || repo.failedJobsMsg == "" {
		t.Fatalf("expected run and jobs marked failed, got run=%q jobs=%q", repo.failedRunMsg, repo.failedJobsMsg)
	}
}

func TestProcessRunByIDUnknownRun(t *testing.T) {
	uc := NewProcessRunUseCase(&fakeRunRepository{}, &fakeStorage{}, &fakeQueue{}, &fakeBatchExtractor{}, domain.ProfileExtended)

	err := uc.ProcessRunByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected run-not-found, got %v", err)
	}
}
