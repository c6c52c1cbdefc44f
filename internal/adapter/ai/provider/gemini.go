package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/prepwise/interview-engine/internal/adapter/observability"
	"github.com/prepwise/interview-engine/internal/domain"
)

// Gemini wraps the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds a Gemini client using the Gemini API backend.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("op=provider.new: gemini api key missing: %w", domain.ErrInvalidArgument)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("op=provider.new: gemini: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		observability.RecordProviderRequest(p.Name(), "error", time.Since(start))
		return "", p.mapError(err)
	}
	observability.RecordProviderRequest(p.Name(), "ok", time.Since(start))
	return result.Text(), nil
}

func (p *Gemini) mapError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("op=provider.generate: provider=gemini: %v: %w", err, domain.ErrProviderRateLimited)
		case apiErr.Code >= 500:
			return fmt.Errorf("op=provider.generate: provider=gemini: %v: %w", err, domain.ErrProvider)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("op=provider.generate: provider=gemini: %v: %w", err, domain.ErrProvider)
}
