package analysis

import (
	"encoding/json"
	"time"
)

// RunID identifies one upload-and-analyze call
type RunID string

// Layout enum, how the working file is placed on disk
type Layout string

const (
	// LayoutShared overwrites one fixed working file on every upload
	LayoutShared Layout = "shared"
	// LayoutPerRequest gives every upload its own working file
	LayoutPerRequest Layout = "per_request"
)

// Status enum
type Status string

const (
	StatusSuccess         Status = "success"
	StatusInvalidPayload  Status = "invalid_payload"
	StatusWriteFailed     Status = "write_failed"
	StatusAnalysisFailed  Status = "analysis_failed"
	StatusMalformedResult Status = "malformed_result"
)

// Result is the outcome of a successful upload
type Result struct {
	RunID       RunID           `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	WorkingFile string          `json:"working_file"`
	Body        json.RawMessage `json:"body"`
	DurationMS  int64           `json:"duration_ms"`
}

// StatusOf classifies an error returned by the upload use case
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case IsInvalidPayload(err):
		return StatusInvalidPayload
	case IsWriteFailure(err):
		return StatusWriteFailed
	case IsMalformedResult(err):
		return StatusMalformedResult
	default:
		return StatusAnalysisFailed
	}
}
