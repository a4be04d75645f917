package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/ports"
	"github.com/finsheet-io/finsheet/internal/core/workbook"
	"github.com/finsheet-io/finsheet/internal/observability/metrics"
)

const (
	workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	extractionModeHeader     = "X-Extraction-Mode"
	extractionRunIDHeader    = "X-Run-Id"
	extractionWarningsHeader = "X-Extraction-Warnings"

	// Joined warnings beyond this are cut off; the full list lives in
	// the run record for async extractions.
	warningsHeaderLimit = 512

	multipartMemoryLimit = 32 << 20
	defaultRunListLimit  = 50
)

type Options struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	InFlightWait   time.Duration
}

type Router struct {
	extractor ports.BatchExtractor
	runs      ports.RunProcessor
	repo      ports.RunRepository
	storage   ports.ObjectStorage
	profile   domain.Profile
	metrics   *metrics.HTTPServerMetrics
	opts      Options
}

func NewRouter(
	extractor ports.BatchExtractor,
	runs ports.RunProcessor,
	repo ports.RunRepository,
	storage ports.ObjectStorage,
	profile domain.Profile,
	serverMetrics *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "finsheet-api"
	}
	return &Router{
		extractor: extractor,
		runs:      runs,
		repo:      repo,
		storage:   storage,
		profile:   profile,
		metrics:   serverMetrics,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/extractions", rt.submitExtraction)
	mux.HandleFunc("/v1/extractions/sync", rt.extractSync)
	mux.HandleFunc("/v1/runs", rt.listRuns)
	mux.HandleFunc("/v1/runs/", rt.runSubresource)
	mux.HandleFunc("/v1/portal/summary", rt.portalSummary)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.InFlightWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// extractSync runs the whole pipeline in the request and streams the
// workbook back.
func (rt *Router) extractSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	docs, err := rt.readDocuments(r)
	if err != nil {
		rt.recordRejection(err)
		rt.writeError(w, err)
		return
	}
	mode := domain.ParseMode(r.URL.Query().Get("mode"))

	start := time.Now()
	result, err := rt.extractor.Extract(r.Context(), docs, mode)
	if rt.metrics != nil {
		effective := ""
		rows, warnings := 0, 0
		if result != nil {
			effective = string(result.EffectiveMode)
			rows = len(result.Rows)
			warnings = len(result.Warnings)
		}
		rt.metrics.RecordBatch(rt.opts.Service, effective, len(docs), rows, warnings, time.Since(start), err)
	}
	if err != nil {
		rt.recordRejection(err)
		rt.writeError(w, err)
		return
	}

	output, err := workbook.Build(rt.profile, result.Rows, result.Metadata)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordWorkbookBytes(rt.opts.Service, len(output))
		rt.metrics.RecordFallbacks(rt.opts.Service, fallbackCount(result.Warnings))
	}

	w.Header().Set("Content-Type", workbookContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="income-statements.xlsx"`)
	w.Header().Set(extractionModeHeader, string(result.EffectiveMode))
	w.Header().Set(extractionRunIDHeader, uuid.NewString())
	if len(result.Warnings) > 0 {
		w.Header().Set(extractionWarningsHeader, joinWarnings(result.Warnings))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(output)
}

// submitExtraction persists the uploads and queues the run for the worker.
func (rt *Router) submitExtraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	docs, err := rt.readDocuments(r)
	if err != nil {
		rt.recordRejection(err)
		rt.writeError(w, err)
		return
	}
	mode := domain.ParseMode(r.URL.Query().Get("mode"))

	run, err := rt.runs.SubmitRun(r.Context(), docs, mode)
	if err != nil {
		rt.recordRejection(err)
		rt.writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRunSubmitted(rt.opts.Service, string(run.RequestedMode))
	}

	w.Header().Set(extractionRunIDHeader, run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	runs, err := rt.repo.ListRuns(r.Context(), limit)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (rt *Router) runSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	runID, sub, _ := strings.Cut(rest, "/")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}

	switch sub {
	case "":
		rt.getRun(w, r, runID)
	case "jobs":
		rt.listRunJobs(w, r, runID)
	case "workbook":
		rt.downloadWorkbook(w, r, runID)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown run resource"})
	}
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := rt.repo.GetRun(r.Context(), runID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) listRunJobs(w http.ResponseWriter, r *http.Request, runID string) {
	if _, err := rt.repo.GetRun(r.Context(), runID); err != nil {
		rt.writeError(w, err)
		return
	}
	jobs, err := rt.repo.ListRunJobs(r.Context(), runID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "jobs": jobs})
}

func (rt *Router) downloadWorkbook(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := rt.repo.GetRun(r.Context(), runID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if run.Status != domain.RunStatusCompleted || run.WorkbookPath == "" {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "workbook is not ready"})
		return
	}

	reader, err := rt.storage.Open(r.Context(), run.WorkbookPath)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", workbookContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="extraction-`+runID+`.xlsx"`)
	w.Header().Set(extractionModeHeader, string(run.EffectiveMode))
	w.Header().Set(extractionRunIDHeader, runID)
	if len(run.Warnings) > 0 {
		w.Header().Set(extractionWarningsHeader, joinWarnings(run.Warnings))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (rt *Router) portalSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	summary, err := rt.repo.Summary(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// readDocuments collects the multipart "documents" parts in upload order.
// Size limits are the use case's concern, not the transport's.
func (rt *Router) readDocuments(r *http.Request) ([]domain.SourceDocument, error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return nil, domain.WrapError(domain.ErrNoDocuments, "read multipart form", err)
	}
	headers := r.MultipartForm.File["documents"]

	docs := make([]domain.SourceDocument, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, domain.WrapError(domain.ErrNoDocuments, "open uploaded file", err)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, domain.WrapError(domain.ErrNoDocuments, "read uploaded file", err)
		}
		docs = append(docs, domain.SourceDocument{
			Name: header.Filename,
			Data: data,
			Size: int64(len(data)),
		})
	}
	return docs, nil
}

func (rt *Router) recordRejection(err error) {
	if rt.metrics == nil {
		return
	}
	switch {
	case domain.IsKind(err, domain.ErrNoDocuments):
		rt.metrics.RecordUploadRejected(rt.opts.Service, "no_documents")
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		rt.metrics.RecordUploadRejected(rt.opts.Service, "payload_too_large")
	case domain.IsKind(err, domain.ErrModeUnavailable):
		rt.metrics.RecordUploadRejected(rt.opts.Service, "mode_unavailable")
	}
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func joinWarnings(warnings []string) string {
	joined := strings.Join(warnings, " | ")
	if len(joined) > warningsHeaderLimit {
		joined = joined[:warningsHeaderLimit]
	}
	return joined
}

func fallbackCount(warnings []string) int {
	count := 0
	for _, warning := range warnings {
		if strings.Contains(warning, "fallback to rule extraction") {
			count++
		}
	}
	return count
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
