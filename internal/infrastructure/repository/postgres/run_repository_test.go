package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*RunRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &RunRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetRunReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRun(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRunScansWarnings(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "requested_mode", "effective_mode", "status", "warnings", "total_files",
		"total_upload_bytes", "workbook_path", "workbook_bytes", "error_message", "created_at", "updated_at",
	}).AddRow(
		"run-1", "auto", "rule", "completed", []byte(`["Gemini extraction failed for a.pdf; fallback to rule extraction."]`),
		1, 2048, "runs/run-1/workbook.xlsx", 4096, "", now, now,
	)
	mock.ExpectQuery("SELECT").WithArgs("run-1").WillReturnRows(rows)

	run, err := repo.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.EffectiveMode != domain.ModeRule || run.Status != domain.RunStatusCompleted {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(run.Warnings) != 1 {
		t.Fatalf("expected decoded warnings, got %v", run.Warnings)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateRunInsertsRunAndJobsTransactionally(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	run := &domain.Run{
		ID:            "run-1",
		RequestedMode: domain.ModeAuto,
		Status:        domain.RunStatusQueued,
		TotalFiles:    1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	job := domain.Job{
		ID:          "job-1",
		RunID:       "run-1",
		FileName:    "a.pdf",
		SizeBytes:   3,
		StoragePath: "runs/run-1/documents/a.pdf",
		Status:      domain.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO extraction_runs").
		WithArgs("run-1", "auto", "", "queued", sqlmock.AnyArg(), 1, int64(0), "", int64(0), "", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO extraction_jobs").
		WithArgs("job-1", "run-1", "a.pdf", int64(3), "runs/run-1/documents/a.pdf", "queued",
			sqlmock.AnyArg(), "", "", 0, "", "", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.CreateRun(context.Background(), run, []domain.Job{job}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateRunRollsBackOnJobInsertFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO extraction_runs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO extraction_jobs").WillReturnError(errors.New("constraint violated"))
	mock.ExpectRollback()

	now := time.Now().UTC()
	err := repo.CreateRun(context.Background(),
		&domain.Run{ID: "run-1", CreatedAt: now, UpdatedAt: now},
		[]domain.Job{{ID: "job-1", RunID: "run-1", CreatedAt: now, UpdatedAt: now}})
	if err == nil {
		t.Fatalf("expected insert failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkRemainingJobsFailedTargetsUnfinishedStatuses(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE extraction_jobs").
		WithArgs("run-1", "failed", "boom", sqlmock.AnyArg(), "queued", "processing").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.MarkRemainingJobsFailed(context.Background(), "run-1", "boom"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteRunWritesWorkbookRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE extraction_runs").
		WithArgs("run-1", "completed", "gemini", sqlmock.AnyArg(), "runs/run-1/workbook.xlsx", int64(4096), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CompleteRun(context.Background(), "run-1", domain.ModeGemini, nil, "runs/run-1/workbook.xlsx", 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSummaryScansCounters(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"c1", "c2", "c3", "c4", "c5"}).AddRow(12, 4, 1, 2, 4)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	summary, err := repo.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.StatementsProcessed != 12 || summary.WorkbooksReady != 4 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
