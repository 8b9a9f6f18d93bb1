package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrInvalidResult means the explainer was handed something that is not a JSON object.
var ErrInvalidResult = errors.New("analysis result must be a JSON object")

// ErrBadResponse means the provider answered with something that is not a JSON object.
var ErrBadResponse = errors.New("ai response is not a JSON object")
