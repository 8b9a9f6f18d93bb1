package analysis

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPayload means the upload body is not a single JSON value.
	ErrInvalidPayload = errors.New("invalid JSON payload")
	// ErrWriteFailure means the working file could not be written.
	ErrWriteFailure = errors.New("working file write failed")
	// ErrAnalysisFailure means the analysis process could not be started,
	// timed out, or exited non-zero.
	ErrAnalysisFailure = errors.New("analysis failed")
	// ErrMalformedResult means the process exited zero but stdout was not JSON.
	ErrMalformedResult = errors.New("malformed analysis result")
)

// AnalysisError carries what the analysis process left behind on failure.
// ExitCode is -1 when the process never produced one.
type AnalysisError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AnalysisError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("%s: %s", ErrAnalysisFailure, msg)
}

func (e *AnalysisError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAnalysisFailure}
	}
	return []error{ErrAnalysisFailure, e.Err}
}

func IsInvalidPayload(err error) bool  { return errors.Is(err, ErrInvalidPayload) }
func IsWriteFailure(err error) bool    { return errors.Is(err, ErrWriteFailure) }
func IsAnalysisFailure(err error) bool { return errors.Is(err, ErrAnalysisFailure) }
func IsMalformedResult(err error) bool { return errors.Is(err, ErrMalformedResult) }
