package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/prepwise/interview-engine/internal/adapter/observability"
	"github.com/prepwise/interview-engine/internal/domain"
)

// Anthropic wraps the Anthropic Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("op=provider.new: anthropic api key missing: %w", domain.ErrInvalidArgument)
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{client: &client, model: model}, nil
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(prompt),
				},
			},
		},
	})
	if err != nil {
		observability.RecordProviderRequest(p.Name(), "error", time.Since(start))
		return "", p.mapError(err)
	}
	observability.RecordProviderRequest(p.Name(), "ok", time.Since(start))

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("op=provider.generate: provider=anthropic: no text content in response: %w", domain.ErrProvider)
	}
	return sb.String(), nil
}

func (p *Anthropic) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("op=provider.generate: provider=anthropic: %v: %w", err, domain.ErrProviderRateLimited)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("op=provider.generate: provider=anthropic: %v: %w", err, domain.ErrProvider)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("op=provider.generate: provider=anthropic: %v: %w", err, domain.ErrProvider)
}
