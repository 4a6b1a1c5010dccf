package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Options selects and configures a provider.
type Options struct {
	Provider string // gemini | groq | fake
	Model    string
	APIKey   string
	BaseURL  string // groq only; empty means the public endpoint
	RPS      float64
	Burst    int
}

// New builds the configured provider wrapped with rate limiting and logging.
func New(ctx context.Context, opts Options, logger *log.Logger) (Client, error) {
	var inner Client
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "gemini":
		g, err := NewGeminiClient(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		inner = g
	case "groq":
		inner = NewGroqClient(opts.APIKey, opts.Model, opts.BaseURL)
	case "fake":
		inner = NewFakeClient()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
	return Wrap(inner, WithLogging(logger), RateLimit(opts.RPS, opts.Burst)), nil
}
