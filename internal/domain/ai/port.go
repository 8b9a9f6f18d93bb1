package ai

import "context"

// Client turns an analysis result (JSON text) into a JSON explanation
type Client interface {
	Explain(ctx context.Context, resultJSON string) (string, error)
}
