package llm

import (
	"context"
	"time"

	"sqlscout/internal/logging"
	"sqlscout/internal/observability"
)

// TracingClient wraps a Client with gateway logging and metrics.
// Call sites stay unaware of it; construction wires it in once.
type TracingClient struct {
	underlying Client
	provider   string
}

// NewTracingClient wraps underlying with logging and metrics.
func NewTracingClient(underlying Client, provider string) *TracingClient {
	return &TracingClient{underlying: underlying, provider: provider}
}

// Complete implements Client.Complete with tracing.
func (tc *TracingClient) Complete(ctx context.Context, prompt string) (string, error) {
	return tc.CompleteWithOptions(ctx, Options{Prompt: prompt})
}

// CompleteWithSystem implements Client.CompleteWithSystem with tracing.
func (tc *TracingClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return tc.CompleteWithOptions(ctx, Options{System: systemPrompt, Prompt: userPrompt})
}

// CompleteWithOptions implements Client.CompleteWithOptions with tracing.
func (tc *TracingClient) CompleteWithOptions(ctx context.Context, opts Options) (string, error) {
	start := time.Now()
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	logging.GatewayDebug("LLM call started: provider=%s prompt_len=%d temp=%.2f", tc.provider, len(opts.Prompt), temperature)

	response, err := tc.underlying.CompleteWithOptions(ctx, opts)

	elapsed := time.Since(start)
	if err != nil {
		logging.GatewayWarn("LLM call failed: provider=%s duration=%v kind=%s error=%v", tc.provider, elapsed, KindOf(err), err)
		observability.ObserveGatewayRequest(tc.provider, "error", elapsed)
	} else {
		logging.Gateway("LLM call completed: provider=%s duration=%v response_len=%d", tc.provider, elapsed, len(response))
		observability.ObserveGatewayRequest(tc.provider, "ok", elapsed)
	}

	return response, err
}

// Underlying returns the wrapped client.
func (tc *TracingClient) Underlying() Client {
	return tc.underlying
}
