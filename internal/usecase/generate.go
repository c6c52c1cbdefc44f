// Package usecase contains the application services behind the HTTP
// handlers: request validation, job creation and dispatch, status assembly.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/prepwise/interview-engine/internal/domain"
)

// GenerateService accepts generation requests, creates the job record and
// dispatches pipeline work. Submit returns as soon as the job exists; the
// caller polls for the outcome.
type GenerateService struct {
	Jobs       domain.JobRepository
	Dispatcher domain.Dispatcher
}

func NewGenerateService(jobs domain.JobRepository, d domain.Dispatcher) GenerateService {
	return GenerateService{Jobs: jobs, Dispatcher: d}
}

// Submit validates req, creates a PROCESSING job and dispatches generation.
func (s GenerateService) Submit(ctx domain.Context, req domain.GenerationRequest) (string, error) {
	if strings.TrimSpace(req.JobTitle) == "" {
		return "", fmt.Errorf("op=generate.submit: job title required: %w", domain.ErrInvalidArgument)
	}
	if req.Difficulty == "" {
		req.Difficulty = domain.DifficultyMidLevel
	}
	if !req.Difficulty.Valid() {
		return "", fmt.Errorf("op=generate.submit: difficulty %q: %w", req.Difficulty, domain.ErrInvalidArgument)
	}
	if req.Language == "" {
		req.Language = domain.LanguageEnglish
	}
	if !req.Language.Valid() {
		return "", fmt.Errorf("op=generate.submit: language %q: %w", req.Language, domain.ErrInvalidArgument)
	}
	if req.ExperienceYears < 0 {
		return "", fmt.Errorf("op=generate.submit: negative experience: %w", domain.ErrInvalidArgument)
	}

	id := uuid.New().String()
	job := domain.Job{
		ID:      id,
		Kind:    domain.JobKindGeneration,
		State:   domain.JobProcessing,
		Request: &req,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("op=generate.submit: %w", err)
	}
	s.Dispatcher.DispatchGeneration(id, req)
	slog.Info("generation job submitted",
		slog.String("job_id", id),
		slog.String("difficulty", string(req.Difficulty)),
		slog.String("language", string(req.Language)))
	return id, nil
}
