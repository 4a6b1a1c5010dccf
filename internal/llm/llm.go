package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("llm: empty response from model")

// Client is a chat-completion provider: one system prompt, one user message,
// one text reply.
type Client interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
	Close() error
}

type ctxKeyPhase struct{}
type ctxKeyJSON struct{}

// WithPhase tags the context with the pipeline step issuing the request.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPhase{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// WithJSONResponse asks providers that support it to constrain the reply to JSON.
func WithJSONResponse(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyJSON{}, true)
}

// JSONResponseFrom reports whether the request expects a JSON reply.
func JSONResponseFrom(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyJSON{}).(bool)
	return v
}
