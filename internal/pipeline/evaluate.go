package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prepwise/interview-engine/internal/domain"
)

const (
	defaultItemFeedback    = "Error processing feedback."
	exhaustedItemFeedback  = "Failed to process response after multiple attempts."
	fallbackSkill          = "General Programming"
	fallbackOverallComment = "Unable to generate overall feedback."
)

// Evaluator scores an answered question set in one batched model call,
// retrying the call-and-parse cycle with backoff. Exhausting retries never
// fails the job: every item falls back to documented defaults instead.
type Evaluator struct {
	Router     TextGenerator
	Parser     ResponseParser
	SkillCount int
	MaxRetries int
	RetryWait  time.Duration
}

type evaluationOut struct {
	Evaluations []evaluationItemOut `json:"evaluations"`
}

type evaluationItemOut struct {
	ID                  int           `json:"id"`
	Score               float64       `json:"score"`
	TechnicalScore      float64       `json:"technical_score"`
	CommunicationScore  float64       `json:"communication_score"`
	ProblemSolvingScore float64       `json:"problem_solving_score"`
	Feedback            string        `json:"feedback"`
	LearningResources   []resourceOut `json:"learning_resources"`
}

type resourceOut struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// EvaluateBatch returns one EvaluationItem per input item, in input order.
// The only error it can return is a deadline error from ctx; all structural
// failures degrade to default-valued items.
func (e *Evaluator) EvaluateBatch(ctx context.Context, items []domain.QuestionItem, p domain.EvaluationParams) ([]domain.EvaluationItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("op=pipeline.evaluate: %w", domain.ErrEmptyBatch)
	}
	prompt := buildEvaluationPrompt(items, p)

	var out evaluationOut
	err := retryWithBackoff(ctx, "evaluation", e.MaxRetries, e.RetryWait, func() error {
		raw, err := e.Router.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		var parsed evaluationOut
		if err := e.Parser.Parse(raw, &parsed); err != nil {
			return err
		}
		if len(parsed.Evaluations) != len(items) {
			return fmt.Errorf("got %d evaluations for %d items: %w",
				len(parsed.Evaluations), len(items), domain.ErrUnparsableResponse)
		}
		out = parsed
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("op=pipeline.evaluate: %w", domain.ErrDeadlineExceeded)
		}
		slog.Warn("evaluation exhausted retries, defaulting batch", slog.Any("error", err))
		return defaultBatch(items, exhaustedItemFeedback), nil
	}

	// Match results to inputs by position; ids in model output are advisory.
	evals := make([]domain.EvaluationItem, 0, len(items))
	for i, item := range items {
		evals = append(evals, normalizeItem(item, out.Evaluations[i]))
	}
	return evals, nil
}

func defaultBatch(items []domain.QuestionItem, feedback string) []domain.EvaluationItem {
	evals := make([]domain.EvaluationItem, 0, len(items))
	for _, item := range items {
		evals = append(evals, defaultItem(item, feedback))
	}
	return evals
}

func defaultItem(item domain.QuestionItem, feedback string) domain.EvaluationItem {
	return domain.EvaluationItem{
		QuestionItem:      item,
		Feedback:          feedback,
		LearningResources: []domain.LearningResource{},
	}
}

func normalizeItem(item domain.QuestionItem, raw evaluationItemOut) domain.EvaluationItem {
	ev := domain.EvaluationItem{
		QuestionItem:        item,
		OverallScore:        clampScore(raw.Score),
		TechnicalScore:      clampScore(raw.TechnicalScore),
		CommunicationScore:  clampScore(raw.CommunicationScore),
		ProblemSolvingScore: clampScore(raw.ProblemSolvingScore),
		Feedback:            strings.TrimSpace(raw.Feedback),
		LearningResources:   []domain.LearningResource{},
	}
	if ev.Feedback == "" {
		ev.Feedback = defaultItemFeedback
	}
	for _, r := range raw.LearningResources {
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.URL) == "" {
			continue
		}
		ev.LearningResources = append(ev.LearningResources, domain.LearningResource{
			Title:       strings.TrimSpace(r.Title),
			URL:         strings.TrimSpace(r.URL),
			Kind:        normalizeResourceKind(r.Kind),
			Description: strings.TrimSpace(r.Description),
		})
	}
	return ev
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func normalizeResourceKind(kind string) domain.ResourceKind {
	switch domain.ResourceKind(strings.ToLower(strings.TrimSpace(kind))) {
	case domain.ResourceVideo:
		return domain.ResourceVideo
	case domain.ResourceTutorial:
		return domain.ResourceTutorial
	case domain.ResourceDocumentation:
		return domain.ResourceDocumentation
	default:
		return domain.ResourceArticle
	}
}

// ExtractSkills names the technologies the question set exercises. It is
// best-effort: anything other than the expected SkillCount names falls back
// to a single generic skill.
func (e *Evaluator) ExtractSkills(ctx context.Context, items []domain.QuestionItem) []string {
	raw, err := e.Router.Generate(ctx, buildSkillsPrompt(items, e.SkillCount))
	if err != nil {
		slog.Warn("skill extraction failed, using fallback", slog.Any("error", err))
		return []string{fallbackSkill}
	}
	var skills []string
	if err := e.Parser.Parse(raw, &skills); err != nil {
		slog.Warn("skill extraction unparsable, using fallback", slog.Any("error", err))
		return []string{fallbackSkill}
	}
	cleaned := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) != e.SkillCount {
		return []string{fallbackSkill}
	}
	return cleaned
}

// OverallFeedback summarizes a scored interview; best-effort with a fixed
// fallback string.
func (e *Evaluator) OverallFeedback(ctx context.Context, evals []domain.EvaluationItem, p domain.EvaluationParams) string {
	raw, err := e.Router.Generate(ctx, buildOverallFeedbackPrompt(evals, p))
	if err != nil {
		slog.Warn("overall feedback failed, using fallback", slog.Any("error", err))
		return fallbackOverallComment
	}
	out := strings.TrimSpace(raw)
	if out == "" {
		return fallbackOverallComment
	}
	return out
}
