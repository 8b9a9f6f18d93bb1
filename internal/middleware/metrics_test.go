package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/finsight/internal/domain/analysis"
)

func TestMetrics_AnalysisOutcomes(t *testing.T) {
	m := NewMetrics()

	m.AnalysisStarted()(nil)
	m.AnalysisStarted()(&domain.AnalysisError{ExitCode: 1, Stderr: "bad input"})
	m.AnalysisStarted()(errors.Join(domain.ErrMalformedResult))
	m.AnalysisStarted()(errors.Join(domain.ErrWriteFailure))
	m.AnalysisStarted()(errors.Join(domain.ErrInvalidPayload))

	require.EqualValues(t, 5, m.UploadsTotal.Load())
	require.EqualValues(t, 1, m.UploadsSucceeded.Load())
	require.EqualValues(t, 1, m.AnalysisFailures.Load())
	require.EqualValues(t, 1, m.MalformedResults.Load())
	require.EqualValues(t, 1, m.WriteFailures.Load())
	require.EqualValues(t, 1, m.InvalidPayloads.Load())
	require.EqualValues(t, 0, m.AnalysesRunning.Load())
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := NewMetrics()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	rr := httptest.NewRecorder()
	m.Handler(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.EqualValues(t, 2, body["requests_total"])
	require.EqualValues(t, 1, body["requests_success"])
	require.EqualValues(t, 1, body["requests_failed"])
	require.EqualValues(t, 0, body["requests_in_progress"])
}
