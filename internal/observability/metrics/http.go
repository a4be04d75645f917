package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	extractionsTotal    *prometheus.CounterVec
	extractionFallbacks *prometheus.CounterVec
	extractionWarnings  *prometheus.HistogramVec
	extractionDocuments *prometheus.HistogramVec
	extractionRows      *prometheus.HistogramVec
	extractionDuration  *prometheus.HistogramVec
	workbookBytes       *prometheus.HistogramVec
	uploadRejectedTotal *prometheus.CounterVec
	runsSubmittedTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsheet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsheet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "finsheet",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	extractionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsheet",
			Subsystem: "extraction",
			Name:      "batches_total",
			Help:      "Total completed extraction batches by effective mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	extractionFallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsheet",
			Subsystem: "extraction",
			Name:      "gemini_fallbacks_total",
			Help:      "Total documents that fell back from Gemini to rule extraction.",
		},
		[]string{"service"},
	)
	extractionWarnings := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsheet",
			Subsystem: "extraction",
			Name:      "warnings",
			Help:      "Distribution of warnings per completed batch.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	extractionDocuments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsheet",
			Subsystem: "extraction",
			Name:      "documents",
			Help:      "Distribution of documents per batch.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	extractionRows := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsheet",
			Subsystem: "extraction",
			Name:      "rows",
			Help:      "Distribution of extracted rows per batch.",
			Buckets:   []float64{0, 1, 3, 7, 15, 30, 60, 120},
		},
		[]string{"service"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsheet",
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "Extraction batch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	workbookBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsheet",
			Subsystem: "workbook",
			Name:      "bytes",
			Help:      "Size of generated workbooks in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"service"},
	)
	uploadRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsheet",
			Subsystem: "http",
			Name:      "uploads_rejected_total",
			Help:      "Total upload batches rejected before extraction.",
		},
		[]string{"service", "reason"},
	)
	runsSubmittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsheet",
			Subsystem: "runs",
			Name:      "submitted_total",
			Help:      "Total extraction runs accepted for async processing.",
		},
		[]string{"service", "mode"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		extractionsTotal,
		extractionFallbacks,
		extractionWarnings,
		extractionDocuments,
		extractionRows,
		extractionDuration,
		workbookBytes,
		uploadRejectedTotal,
		runsSubmittedTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		extractionsTotal:    extractionsTotal,
		extractionFallbacks: extractionFallbacks,
		extractionWarnings:  extractionWarnings,
		extractionDocuments: extractionDocuments,
		extractionRows:      extractionRows,
		extractionDuration:  extractionDuration,
		workbookBytes:       workbookBytes,
		uploadRejectedTotal: uploadRejectedTotal,
		runsSubmittedTotal:  runsSubmittedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/runs/"):
		rest := strings.TrimPrefix(path, "/v1/runs/")
		switch {
		case strings.HasSuffix(rest, "/jobs"):
			return "/v1/runs/{run_id}/jobs"
		case strings.HasSuffix(rest, "/workbook"):
			return "/v1/runs/{run_id}/workbook"
		default:
			return "/v1/runs/{run_id}"
		}
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordBatch(service, mode string, documents, rows, warnings int, duration time.Duration, err error) {
	if mode == "" {
		mode = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}

	m.extractionsTotal.WithLabelValues(service, mode, status).Inc()
	m.extractionDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.extractionDocuments.WithLabelValues(service).Observe(float64(documents))
	m.extractionRows.WithLabelValues(service).Observe(float64(rows))
	m.extractionWarnings.WithLabelValues(service).Observe(float64(warnings))
}

func (m *HTTPServerMetrics) RecordFallbacks(service string, count int) {
	if count <= 0 {
		return
	}
	m.extractionFallbacks.WithLabelValues(service).Add(float64(count))
}

func (m *HTTPServerMetrics) RecordWorkbookBytes(service string, size int) {
	if size <= 0 {
		return
	}
	m.workbookBytes.WithLabelValues(service).Observe(float64(size))
}

func (m *HTTPServerMetrics) RecordUploadRejected(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.uploadRejectedTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordRunSubmitted(service, mode string) {
	if mode == "" {
		mode = "unknown"
	}
	m.runsSubmittedTotal.WithLabelValues(service, mode).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
