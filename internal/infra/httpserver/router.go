package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/finsight/internal/application/ai"
	appanalysis "github.com/bryanwahyu/finsight/internal/application/analysis"
	domai "github.com/bryanwahyu/finsight/internal/domain/ai"
	domain "github.com/bryanwahyu/finsight/internal/domain/analysis"
	"github.com/bryanwahyu/finsight/internal/logger"
	"github.com/bryanwahyu/finsight/internal/middleware"
)

// RunIDHeader carries the run id of an upload
const RunIDHeader = "X-Run-ID"

// maxStderrBytes caps how much analysis stderr is echoed to the client
const maxStderrBytes = 4 << 10

type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	SlowRequest    time.Duration
	Limiter        *middleware.RateLimiter
	Metrics        *middleware.Metrics
	HealthChecks   map[string]middleware.HealthChecker
}

type Router struct {
	analysisSvc *appanalysis.Service
	aiSvc       *appai.Service
	metrics     *middleware.Metrics
	maxBody     int64
}

// NewRouter builds the HTTP surface. aiSvc may be nil, /explain then answers 503.
func NewRouter(analysisSvc *appanalysis.Service, aiSvc *appai.Service, opts Options) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	rt := &Router{
		analysisSvc: analysisSvc,
		aiSvc:       aiSvc,
		metrics:     opts.Metrics,
		maxBody:     opts.MaxBodyBytes,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.LoggingMiddleware(opts.SlowRequest))
	mux.Use(opts.Metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, RunIDHeader},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.HealthChecks))
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/health/ready", middleware.ReadinessHandler(opts.HealthChecks))
	mux.Get("/metrics", opts.Metrics.Handler)

	mux.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(opts.Limiter))
		r.Post("/upload", rt.wrap(rt.handleUpload))
		r.Post("/explain", rt.wrap(rt.handleExplain))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

var errExplainDisabled = errors.New("explain is not configured")

// wrap maps use case errors to plain-text responses
func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		logger.C(req.Context()).Warn().Err(err).Str("path", req.URL.Path).Msg("request failed")

		var tooLarge *http.MaxBytesError
		var analysisErr *domain.AnalysisError
		switch {
		case errors.As(err, &tooLarge):
			http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		case errors.Is(err, errUnsupportedMedia):
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		case domain.IsInvalidPayload(err), errors.Is(err, domai.ErrInvalidResult):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domai.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		case errors.Is(err, errExplainDisabled):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.As(err, &analysisErr):
			msg := middleware.Truncate(middleware.SanitizeString(analysisErr.Error()), maxStderrBytes)
			http.Error(w, "Error processing data: "+msg, http.StatusInternalServerError)
		case domain.IsMalformedResult(err), domain.IsWriteFailure(err):
			http.Error(w, "Error processing data: "+err.Error(), http.StatusInternalServerError)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

var errUnsupportedMedia = errors.New("unsupported media type")

func (rt *Router) readBody(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	if err := middleware.ValidateContentType(req.Header.Get("Content-Type")); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnsupportedMedia, err)
	}
	return io.ReadAll(http.MaxBytesReader(w, req.Body, rt.maxBody))
}

// POST /upload
// Body: any JSON document. Responds with the analysis process output.
func (rt *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	body, err := rt.readBody(w, req)
	if err != nil {
		return err
	}

	done := rt.metrics.AnalysisStarted()
	res, err := rt.analysisSvc.HandleUpload(req.Context(), body)
	done(err)
	if res.RunID != "" {
		w.Header().Set(RunIDHeader, string(res.RunID))
	}
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeBody(req, w, res.Body)
	return nil
}

// writeBody sends a body after the status line. Failures are only logged,
// the status can no longer change.
func writeBody(req *http.Request, w http.ResponseWriter, body []byte) {
	if _, err := w.Write(body); err != nil {
		logger.C(req.Context()).Warn().Err(err).Str("path", req.URL.Path).Msg("write response")
	}
}

// POST /explain
// Body: an analysis result object as returned by /upload.
func (rt *Router) handleExplain(w http.ResponseWriter, req *http.Request) error {
	if rt.aiSvc == nil {
		return errExplainDisabled
	}
	body, err := rt.readBody(w, req)
	if err != nil {
		return err
	}
	out, err := rt.aiSvc.Explain(req.Context(), body)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeBody(req, w, out)
	return nil
}
