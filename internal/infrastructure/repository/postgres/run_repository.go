package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS extraction_runs (
	id TEXT PRIMARY KEY,
	requested_mode TEXT NOT NULL,
	effective_mode TEXT,
	status TEXT NOT NULL,
	warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	total_files INTEGER NOT NULL DEFAULT 0,
	total_upload_bytes BIGINT NOT NULL DEFAULT 0,
	workbook_path TEXT,
	workbook_bytes BIGINT NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_jobs (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES extraction_runs(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	years JSONB NOT NULL DEFAULT '[]'::jsonb,
	currency TEXT,
	units TEXT,
	extracted_row_count INTEGER NOT NULL DEFAULT 0,
	warning TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extraction_runs_status ON extraction_runs(status);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_created_at ON extraction_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_jobs_run_id ON extraction_jobs(run_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// CreateRun inserts the run and all of its jobs in one transaction so a
// half-created run never becomes visible to the worker.
func (r *RunRepository) CreateRun(ctx context.Context, run *domain.Run, jobs []domain.Job) error {
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO extraction_runs (
	id, requested_mode, effective_mode, status, warnings, total_files, total_upload_bytes,
	workbook_path, workbook_bytes, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		run.ID, string(run.RequestedMode), string(run.EffectiveMode), string(run.Status), warningsJSON,
		run.TotalFiles, run.TotalUploadBytes, run.WorkbookPath, run.WorkbookBytes, run.Error,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, job := range jobs {
		yearsJSON, err := json.Marshal(job.Years)
		if err != nil {
			return fmt.Errorf("marshal years: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO extraction_jobs (
	id, run_id, file_name, size_bytes, storage_path, status, years, currency, units,
	extracted_row_count, warning, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
			job.ID, job.RunID, job.FileName, job.SizeBytes, job.StoragePath, string(job.Status),
			yearsJSON, job.Currency, job.Units, job.ExtractedRowCount, job.Warning, job.Error,
			job.CreatedAt, job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job %s: %w", job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

const runColumns = `
id, requested_mode, COALESCE(effective_mode, ''), status, warnings, total_files, total_upload_bytes,
COALESCE(workbook_path, ''), workbook_bytes, COALESCE(error_message, ''), created_at, updated_at`

func scanRun(scanner interface{ Scan(...any) error }) (*domain.Run, error) {
	var run domain.Run
	var requestedMode, effectiveMode, status string
	var warningsRaw []byte

	err := scanner.Scan(
		&run.ID, &requestedMode, &effectiveMode, &status, &warningsRaw, &run.TotalFiles,
		&run.TotalUploadBytes, &run.WorkbookPath, &run.WorkbookBytes, &run.Error,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(warningsRaw, &run.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	run.RequestedMode = domain.Mode(requestedMode)
	run.EffectiveMode = domain.Mode(effectiveMode)
	run.Status = domain.RunStatus(status)
	return &run, nil
}

func (r *RunRepository) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM extraction_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("run %s", runID))
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM extraction_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) ListRunJobs(ctx context.Context, runID string) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, run_id, file_name, size_bytes, storage_path, status, years, COALESCE(currency, ''),
	COALESCE(units, ''), extracted_row_count, COALESCE(warning, ''), COALESCE(error_message, ''),
	created_at, updated_at
FROM extraction_jobs
WHERE run_id = $1
ORDER BY created_at, id
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		var status string
		var yearsRaw []byte
		err := rows.Scan(
			&job.ID, &job.RunID, &job.FileName, &job.SizeBytes, &job.StoragePath, &status,
			&yearsRaw, &job.Currency, &job.Units, &job.ExtractedRowCount, &job.Warning, &job.Error,
			&job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if err := json.Unmarshal(yearsRaw, &job.Years); err != nil {
			return nil, fmt.Errorf("unmarshal years: %w", err)
		}
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *RunRepository) MarkJobProcessing(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE extraction_jobs
SET status = $2, updated_at = $3
WHERE id = $1
`, jobID, string(domain.JobStatusProcessing), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	return nil
}

func (r *RunRepository) MarkJobCompleted(ctx context.Context, job *domain.Job) error {
	yearsJSON, err := json.Marshal(job.Years)
	if err != nil {
		return fmt.Errorf("marshal years: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE extraction_jobs
SET status = $2, years = $3, currency = $4, units = $5, extracted_row_count = $6, warning = $7, updated_at = $8
WHERE id = $1
`, job.ID, string(domain.JobStatusCompleted), yearsJSON, job.Currency, job.Units,
		job.ExtractedRowCount, job.Warning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

func (r *RunRepository) MarkRemainingJobsFailed(ctx context.Context, runID, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE extraction_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE run_id = $1 AND status IN ($5, $6)
`, runID, string(domain.JobStatusFailed), message, time.Now().UTC(),
		string(domain.JobStatusQueued), string(domain.JobStatusProcessing))
	if err != nil {
		return fmt.Errorf("mark jobs failed: %w", err)
	}
	return nil
}

func (r *RunRepository) CompleteRun(ctx context.Context, runID string, effectiveMode domain.Mode, warnings []string, workbookPath string, workbookBytes int64) error {
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE extraction_runs
SET status = $2, effective_mode = $3, warnings = $4, workbook_path = $5, workbook_bytes = $6, updated_at = $7
WHERE id = $1
`, runID, string(domain.RunStatusCompleted), string(effectiveMode), warningsJSON,
		workbookPath, workbookBytes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (r *RunRepository) FailRun(ctx context.Context, runID, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE extraction_runs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, runID, string(domain.RunStatusFailed), message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

// Summary aggregates the counters shown on the portal landing page.
func (r *RunRepository) Summary(ctx context.Context) (domain.RunSummary, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM extraction_jobs WHERE status = 'completed'),
	(SELECT COUNT(*) FROM extraction_runs WHERE status = 'completed'),
	(SELECT COUNT(*) FROM extraction_runs WHERE status = 'failed'),
	(SELECT COUNT(*) FROM extraction_jobs WHERE status IN ('queued', 'processing')),
	(SELECT COUNT(*) FROM extraction_runs WHERE status = 'completed' AND workbook_path IS NOT NULL)
`)

	var summary domain.RunSummary
	err := row.Scan(
		&summary.StatementsProcessed, &summary.CompletedRuns, &summary.FailedRuns,
		&summary.QueuedJobs, &summary.WorkbooksReady,
	)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("scan summary: %w", err)
	}
	return summary, nil
}
