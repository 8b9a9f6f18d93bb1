package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/bryanwahyu/finsight/internal/application"
	domain "github.com/bryanwahyu/finsight/internal/domain/analysis"
	"github.com/bryanwahyu/finsight/internal/logger"
)

// Options describe where the working file lives and how calls are gated
type Options struct {
	Layout      domain.Layout
	WorkDir     string
	WorkingFile string
	// MaxConcurrent caps simultaneous analyses in the per_request layout,
	// 0 means unbounded. The shared layout always runs one at a time.
	MaxConcurrent int64
	// Timeout bounds one analysis process, 0 waits forever
	Timeout time.Duration
	// QueueTimeout bounds the wait for a free analysis slot, 0 waits forever
	QueueTimeout time.Duration
}

// Service implements the upload-and-analyze use case. It is safe for
// concurrent use.
type Service struct {
	Runner domain.Runner
	Files  domain.FileWriter
	Clock  application.Clock
	opts   Options
	gate   *semaphore.Weighted
	newID  func() string
}

func NewService(runner domain.Runner, files domain.FileWriter, clock application.Clock, opts Options) *Service {
	if opts.Layout == "" {
		opts.Layout = domain.LayoutShared
	}
	if opts.WorkingFile == "" {
		opts.WorkingFile = "data.json"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if abs, err := filepath.Abs(opts.WorkDir); err == nil {
		opts.WorkDir = abs
	}
	if clock == nil {
		clock = application.SystemClock{}
	}

	var gate *semaphore.Weighted
	switch {
	case opts.Layout == domain.LayoutShared:
		gate = semaphore.NewWeighted(1)
	case opts.MaxConcurrent > 0:
		gate = semaphore.NewWeighted(opts.MaxConcurrent)
	}

	return &Service{
		Runner: runner,
		Files:  files,
		Clock:  clock,
		opts:   opts,
		gate:   gate,
		newID:  func() string { return uuid.New().String() },
	}
}

// Layout reports the configured working file layout
func (s *Service) Layout() domain.Layout { return s.opts.Layout }

// SharedPath is the fixed working file used by the shared layout
func (s *Service) SharedPath() string {
	return filepath.Join(s.opts.WorkDir, s.opts.WorkingFile)
}

// HandleUpload writes payload to the working file, runs the analysis process
// once and returns its JSON stdout. Errors match ErrInvalidPayload,
// ErrWriteFailure, ErrAnalysisFailure or ErrMalformedResult.
func (s *Service) HandleUpload(ctx context.Context, payload []byte) (domain.Result, error) {
	id := domain.RunID(s.newID())
	ctx = logger.WithRunID(ctx, string(id))
	log := logger.C(ctx)

	canonical, err := Canonicalize(payload)
	if err != nil {
		return domain.Result{RunID: id}, err
	}

	if s.gate != nil {
		if err := s.acquire(ctx); err != nil {
			log.Warn().Err(err).Msg("no analysis slot")
			return domain.Result{RunID: id}, &domain.AnalysisError{ExitCode: -1, Err: err}
		}
		defer s.gate.Release(1)
	}

	started := s.Clock.Now()
	path, extra := s.workingFileFor(id)
	res := domain.Result{RunID: id, StartedAt: started, WorkingFile: path}

	if err := s.Files.WriteFile(path, canonical); err != nil {
		log.Error().Err(err).Str("path", path).Msg("write working file")
		return res, fmt.Errorf("%w: %w", domain.ErrWriteFailure, err)
	}
	if s.opts.Layout == domain.LayoutPerRequest {
		defer func() {
			if err := s.Files.Remove(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("remove working file")
			}
		}()
	}

	runCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	// jalankan runner sekali, tanpa retry
	out, err := s.Runner.Run(runCtx, domain.RunRequest{InputPath: path, ExtraArgs: extra})
	res.DurationMS = out.DurationMS
	if err != nil {
		log.Error().Err(err).Str("stderr", string(out.Stderr)).Msg("analysis process did not run")
		return res, &domain.AnalysisError{ExitCode: out.ExitCode, Stderr: string(out.Stderr), Err: err}
	}
	if out.ExitCode != 0 {
		log.Error().Int("exit_code", out.ExitCode).Str("stderr", string(out.Stderr)).Msg("analysis process failed")
		return res, &domain.AnalysisError{ExitCode: out.ExitCode, Stderr: string(out.Stderr)}
	}

	body, err := ParseResult(out.Stdout)
	if err != nil {
		log.Error().Err(err).Int("stdout_bytes", len(out.Stdout)).Msg("analysis output is not JSON")
		return res, err
	}
	res.Body = body

	log.Info().Int64("duration_ms", res.DurationMS).Int("result_bytes", len(body)).Msg("analysis done")
	return res, nil
}

// acquire waits for a gate slot, at most QueueTimeout
func (s *Service) acquire(ctx context.Context) error {
	if s.opts.QueueTimeout <= 0 {
		return s.gate.Acquire(ctx, 1)
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.QueueTimeout)
	defer cancel()
	if err := s.gate.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("no analysis slot free within %s: %w", s.opts.QueueTimeout, err)
		}
		return err
	}
	return nil
}

func (s *Service) workingFileFor(id domain.RunID) (string, []string) {
	if s.opts.Layout != domain.LayoutPerRequest {
		return s.SharedPath(), nil
	}
	ext := filepath.Ext(s.opts.WorkingFile)
	stem := strings.TrimSuffix(s.opts.WorkingFile, ext)
	p := filepath.Join(s.opts.WorkDir, fmt.Sprintf("%s-%s%s", stem, id, ext))
	return p, []string{p}
}

// Canonicalize validates payload as exactly one JSON value and strips
// insignificant whitespace. Member order and number spelling are preserved.
// Invalid UTF-8 sequences become U+FFFD so the working file is always UTF-8.
func Canonicalize(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if !utf8.Valid(trimmed) {
		trimmed = bytes.ToValidUTF8(trimmed, []byte("\uFFFD"))
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidPayload)
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPayload, syntaxDetail(trimmed))
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return buf.Bytes(), nil
}

// ParseResult validates analysis stdout as exactly one JSON value
func ParseResult(stdout []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty output", domain.ErrMalformedResult)
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedResult, syntaxDetail(trimmed))
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResult, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

func syntaxDetail(b []byte) string {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err.Error()
	}
	return "not a single JSON value"
}
