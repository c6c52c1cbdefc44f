package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/prepwise/interview-engine/internal/domain"
)

// Answer pairs a question id from a completed generation job with the
// candidate's answer text.
type Answer struct {
	QuestionID int
	Text       string
}

// EvaluateService turns a completed generation job plus candidate answers
// into a new evaluation job. Evaluation never mutates the source job.
type EvaluateService struct {
	Jobs       domain.JobRepository
	Dispatcher domain.Dispatcher
}

func NewEvaluateService(jobs domain.JobRepository, d domain.Dispatcher) EvaluateService {
	return EvaluateService{Jobs: jobs, Dispatcher: d}
}

// Submit creates and dispatches an evaluation job for sourceID. Answers are
// matched to questions by id; unanswered questions are evaluated with an
// empty candidate answer.
func (s EvaluateService) Submit(ctx domain.Context, sourceID string, answers []Answer, p domain.EvaluationParams) (string, error) {
	source, err := s.Jobs.Get(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("op=evaluate.submit: %w", err)
	}
	if source.Kind != domain.JobKindGeneration || source.State != domain.JobCompleted || len(source.Questions) == 0 {
		return "", fmt.Errorf("op=evaluate.submit: job %s has no completed question set: %w", sourceID, domain.ErrInvalidArgument)
	}
	if !p.Difficulty.Valid() {
		p.Difficulty = source.Request.DifficultyOrDefault()
	}
	if p.Language == "" {
		p.Language = domain.LanguageEnglish
	}
	if !p.Language.Valid() {
		return "", fmt.Errorf("op=evaluate.submit: language %q: %w", p.Language, domain.ErrInvalidArgument)
	}

	byID := make(map[int]string, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = strings.TrimSpace(a.Text)
	}
	items := make([]domain.QuestionItem, len(source.Questions))
	for i, q := range source.Questions {
		q.CandidateAnswer = byID[q.ID]
		items[i] = q
	}

	id := uuid.New().String()
	job := domain.Job{
		ID:          id,
		Kind:        domain.JobKindEvaluation,
		State:       domain.JobProcessing,
		Questions:   items,
		DurationSec: p.DurationSec,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("op=evaluate.submit: %w", err)
	}
	s.Dispatcher.DispatchEvaluation(id, items, p)
	slog.Info("evaluation job submitted",
		slog.String("job_id", id),
		slog.String("source_job_id", sourceID),
		slog.Int("answers", len(answers)))
	return id, nil
}
