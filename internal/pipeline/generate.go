package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prepwise/interview-engine/internal/domain"
)

const (
	defaultQuestionText    = "Additional question %d"
	defaultReferenceAnswer = "Expected answer not provided"
)

// Generator turns a generation request into a fixed-size question set.
type Generator struct {
	Router        TextGenerator
	Parser        ResponseParser
	QuestionCount int
	MaxRetries    int
	RetryWait     time.Duration
}

// TextGenerator is the router-facing dependency of the pipeline stages.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ResponseParser repairs and decodes one raw completion.
type ResponseParser interface {
	Parse(raw string, v any) error
}

type generationOut struct {
	Questions []struct {
		ID              int    `json:"id"`
		Question        string `json:"question"`
		ReferenceAnswer string `json:"reference_answer"`
	} `json:"questions"`
}

// Generate produces exactly QuestionCount questions. A structurally short
// result is padded with placeholder questions; an oversized one is cut. The
// whole call-and-parse cycle retries with backoff before giving up.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) ([]domain.QuestionItem, error) {
	prompt := buildGenerationPrompt(req, g.QuestionCount)

	var out generationOut
	err := retryWithBackoff(ctx, "generation", g.MaxRetries, g.RetryWait, func() error {
		raw, err := g.Router.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		var parsed generationOut
		if err := g.Parser.Parse(raw, &parsed); err != nil {
			return err
		}
		if len(parsed.Questions) == 0 {
			return fmt.Errorf("no questions in response: %w", domain.ErrUnparsableResponse)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=pipeline.generate: %w", err)
	}

	items := make([]domain.QuestionItem, 0, g.QuestionCount)
	for _, q := range out.Questions {
		if len(items) == g.QuestionCount {
			break
		}
		text := strings.TrimSpace(q.Question)
		if text == "" {
			continue
		}
		answer := strings.TrimSpace(q.ReferenceAnswer)
		if answer == "" {
			answer = defaultReferenceAnswer
		}
		items = append(items, domain.QuestionItem{
			ID:              len(items) + 1,
			Question:        text,
			ReferenceAnswer: answer,
		})
	}
	if pad := g.QuestionCount - len(items); pad > 0 {
		slog.Warn("generation returned short question set, padding",
			slog.Int("got", len(items)),
			slog.Int("want", g.QuestionCount))
		for len(items) < g.QuestionCount {
			items = append(items, domain.QuestionItem{
				ID:              len(items) + 1,
				Question:        fmt.Sprintf(defaultQuestionText, len(items)+1),
				ReferenceAnswer: defaultReferenceAnswer,
			})
		}
	}
	return items, nil
}
