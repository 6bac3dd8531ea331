// Package llm provides the gateway between the agent and LLM providers.
// Providers speak plain HTTP; the rest of the system depends only on Client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client is the completion interface consumed by the agent loop.
type Client interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteWithOptions sends a prompt with explicit sampling options.
	CompleteWithOptions(ctx context.Context, opts Options) (string, error)
}

// DefaultTemperature is used when a call does not set one.
const DefaultTemperature = 0.1

// Options carries per-call sampling parameters. A nil Temperature means
// DefaultTemperature; an explicit zero is sent to the provider as-is.
type Options struct {
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

// Temp returns a pointer to v for use in Options.Temperature.
func Temp(v float64) *float64 {
	return &v
}

// ErrorKind classifies gateway failures so callers can pick a policy per kind.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindMalformed   ErrorKind = "malformed"
)

// GatewayError wraps a provider failure with its classification.
type GatewayError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or "" when it is not a gateway error.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// classify maps transport-level failures onto the error taxonomy.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindMalformed
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		kind = KindTimeout
	}
	return &GatewayError{Kind: kind, Provider: provider, Err: err}
}

// Config selects and configures a provider client.
type Config struct {
	Provider string // anthropic, gemini
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// New builds a provider client from config. Unknown providers are an error.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropicClientWithConfig(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case "gemini":
		return NewGeminiClientWithConfig(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
