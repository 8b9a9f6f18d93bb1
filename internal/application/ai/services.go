package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/finsight/internal/domain/ai"
)

type Service struct {
	client ai.Client
}

func NewService(client ai.Client) *Service {
	return &Service{client: client}
}

// Explain validates result, asks the client for an explanation and checks
// the answer is a JSON object before handing it back
func (s *Service) Explain(ctx context.Context, result []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(result)
	if !isObject(trimmed) {
		return nil, ai.ErrInvalidResult
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, ai.ErrInvalidResult
	}

	out, err := s.client.Explain(ctx, compact.String())
	if err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace([]byte(out))
	if !isObject(raw) {
		return nil, fmt.Errorf("%w: %.80q", ai.ErrBadResponse, out)
	}
	return json.RawMessage(raw), nil
}

func isObject(b []byte) bool {
	return len(b) > 0 && b[0] == '{' && json.Valid(b)
}
