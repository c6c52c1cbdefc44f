// Package provider implements clients for the upstream model providers.
// Groq and Together expose OpenAI-compatible APIs and share one client;
// Gemini and Anthropic use their native SDKs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/prepwise/interview-engine/internal/adapter/observability"
	"github.com/prepwise/interview-engine/internal/domain"
)

// OpenAICompat talks to any OpenAI-compatible chat completion API.
type OpenAICompat struct {
	name   string
	client *openai.Client
	model  string
}

// NewOpenAICompat builds a client for an OpenAI-compatible endpoint. name
// identifies the provider in logs and metrics (e.g. "groq", "together").
func NewOpenAICompat(name, apiKey, baseURL, model string) (*OpenAICompat, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("op=provider.new: %s api key missing: %w", name, domain.ErrInvalidArgument)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &OpenAICompat{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (p *OpenAICompat) Name() string { return p.name }

func (p *OpenAICompat) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		observability.RecordProviderRequest(p.name, "error", time.Since(start))
		return "", p.mapError(err)
	}
	observability.RecordProviderRequest(p.name, "ok", time.Since(start))
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("op=provider.generate: provider=%s: no choices in response: %w", p.name, domain.ErrProvider)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAICompat) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("op=provider.generate: provider=%s: %v: %w", p.name, err, domain.ErrProviderRateLimited)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("op=provider.generate: provider=%s: %v: %w", p.name, err, domain.ErrProvider)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("op=provider.generate: provider=%s: %v: %w", p.name, err, domain.ErrProvider)
}
