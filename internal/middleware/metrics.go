package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	domain "github.com/bryanwahyu/finsight/internal/domain/analysis"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64

	UploadsTotal     atomic.Uint64
	UploadsSucceeded atomic.Uint64
	InvalidPayloads  atomic.Uint64
	WriteFailures    atomic.Uint64
	AnalysisFailures atomic.Uint64
	MalformedResults atomic.Uint64
	AnalysesRunning  atomic.Int64

	StartTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// AnalysisStarted marks one upload entering the use case and returns the
// func that records its outcome
func (m *Metrics) AnalysisStarted() func(err error) {
	m.UploadsTotal.Add(1)
	m.AnalysesRunning.Add(1)
	return func(err error) {
		m.AnalysesRunning.Add(-1)
		switch domain.StatusOf(err) {
		case domain.StatusSuccess:
			m.UploadsSucceeded.Add(1)
		case domain.StatusInvalidPayload:
			m.InvalidPayloads.Add(1)
		case domain.StatusWriteFailed:
			m.WriteFailures.Add(1)
		case domain.StatusMalformedResult:
			m.MalformedResults.Add(1)
		default:
			m.AnalysisFailures.Add(1)
		}
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]interface{}{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"uploads_total":        m.UploadsTotal.Load(),
		"uploads_succeeded":    m.UploadsSucceeded.Load(),
		"invalid_payloads":     m.InvalidPayloads.Load(),
		"write_failures":       m.WriteFailures.Load(),
		"analysis_failures":    m.AnalysisFailures.Load(),
		"malformed_results":    m.MalformedResults.Load(),
		"analyses_running":     m.AnalysesRunning.Load(),
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       ms.Alloc,
			"total_alloc_bytes": ms.TotalAlloc,
			"sys_bytes":         ms.Sys,
			"num_gc":            ms.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
