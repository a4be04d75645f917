package domain

import "time"

type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Run is one extraction batch submitted by a caller.
type Run struct {
	ID               string    `json:"id"`
	RequestedMode    Mode      `json:"requested_mode"`
	EffectiveMode    Mode      `json:"effective_mode"`
	Status           RunStatus `json:"status"`
	Warnings         []string  `json:"warnings"`
	TotalFiles       int       `json:"total_files"`
	TotalUploadBytes int64     `json:"total_upload_bytes"`
	WorkbookPath     string    `json:"workbook_path,omitempty"`
	WorkbookBytes    int64     `json:"workbook_bytes,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Job tracks one document inside a run.
type Job struct {
	ID                string    `json:"id"`
	RunID             string    `json:"run_id"`
	FileName          string    `json:"file_name"`
	SizeBytes         int64     `json:"size_bytes"`
	StoragePath       string    `json:"storage_path"`
	Status            JobStatus `json:"status"`
	Years             []string  `json:"years"`
	Currency          string    `json:"currency"`
	Units             string    `json:"units"`
	ExtractedRowCount int       `json:"extracted_row_count"`
	Warning           string    `json:"warning"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RunSummary backs the portal summary cards.
type RunSummary struct {
	StatementsProcessed int `json:"statements_processed"`
	CompletedRuns       int `json:"completed_runs"`
	FailedRuns          int `json:"failed_runs"`
	QueuedJobs          int `json:"queued_jobs"`
	WorkbooksReady      int `json:"workbooks_ready"`
}
