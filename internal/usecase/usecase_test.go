package usecase_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/interview-engine/internal/adapter/repo/memory"
	"github.com/prepwise/interview-engine/internal/domain"
	"github.com/prepwise/interview-engine/internal/usecase"
)

// recordingDispatcher captures dispatch calls without running a pipeline.
type recordingDispatcher struct {
	generations []string
	evaluations []string
	items       []domain.QuestionItem
	params      domain.EvaluationParams
}

func (d *recordingDispatcher) DispatchGeneration(jobID string, _ domain.GenerationRequest) {
	d.generations = append(d.generations, jobID)
}

func (d *recordingDispatcher) DispatchEvaluation(jobID string, items []domain.QuestionItem, p domain.EvaluationParams) {
	d.evaluations = append(d.evaluations, jobID)
	d.items = items
	d.params = p
}

func validRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		JobTitle:        "Platform Engineer",
		Difficulty:      domain.DifficultyMidLevel,
		Language:        domain.LanguageEnglish,
		ExperienceYears: 4,
	}
}

func TestGenerateSubmitCreatesProcessingJob(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	disp := &recordingDispatcher{}
	svc := usecase.NewGenerateService(repo, disp)

	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, []string{id}, disp.generations)

	j, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobProcessing, j.State)
	assert.Equal(t, domain.JobKindGeneration, j.Kind)
	require.NotNil(t, j.Request)
	assert.Equal(t, "Platform Engineer", j.Request.JobTitle)
}

func TestGenerateSubmitValidation(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	svc := usecase.NewGenerateService(repo, &recordingDispatcher{})

	cases := []struct {
		name   string
		mutate func(*domain.GenerationRequest)
	}{
		{"missing title", func(r *domain.GenerationRequest) { r.JobTitle = "  " }},
		{"bad difficulty", func(r *domain.GenerationRequest) { r.Difficulty = "EXPERT" }},
		{"bad language", func(r *domain.GenerationRequest) { r.Language = "PT" }},
		{"negative experience", func(r *domain.GenerationRequest) { r.ExperienceYears = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.Submit(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestGenerateSubmitDefaultsLanguage(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	disp := &recordingDispatcher{}
	svc := usecase.NewGenerateService(repo, disp)

	req := validRequest()
	req.Language = ""
	id, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	j, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.LanguageEnglish, j.Request.Language)
}

func completedGeneration(t *testing.T, repo domain.JobRepository) string {
	t.Helper()
	req := validRequest()
	job := domain.Job{
		ID: "src", Kind: domain.JobKindGeneration, State: domain.JobProcessing, Request: &req,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, repo.Complete(context.Background(), "src", domain.JobResult{
		Questions: []domain.QuestionItem{
			{ID: 1, Question: "Q1", ReferenceAnswer: "A1"},
			{ID: 2, Question: "Q2", ReferenceAnswer: "A2"},
		},
	}))
	return "src"
}

func TestEvaluateSubmitMergesAnswers(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	disp := &recordingDispatcher{}
	svc := usecase.NewEvaluateService(repo, disp)
	src := completedGeneration(t, repo)

	answers := []usecase.Answer{{QuestionID: 2, Text: "  my answer  "}}
	id, err := svc.Submit(context.Background(), src, answers, domain.EvaluationParams{
		Difficulty: domain.DifficultySenior, Language: domain.LanguageFrench, DurationSec: 1800,
	})
	require.NoError(t, err)
	assert.NotEqual(t, src, id, "evaluation is a new job")
	assert.Equal(t, []string{id}, disp.evaluations)

	// The interview duration is recorded on the evaluation job itself.
	evalJob, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1800, evalJob.DurationSec)

	require.Len(t, disp.items, 2)
	assert.Empty(t, disp.items[0].CandidateAnswer, "unanswered question stays empty")
	assert.Equal(t, "my answer", disp.items[1].CandidateAnswer)
	assert.Equal(t, domain.LanguageFrench, disp.params.Language)

	// Source job is untouched.
	srcJob, err := repo.Get(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, srcJob.Questions[1].CandidateAnswer)
}

func TestEvaluateSubmitSourceMustBeCompletedGeneration(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	svc := usecase.NewEvaluateService(repo, &recordingDispatcher{})

	_, err := svc.Submit(context.Background(), "missing", nil, domain.EvaluationParams{})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	require.NoError(t, repo.Create(context.Background(), domain.Job{
		ID: "pending", Kind: domain.JobKindGeneration, State: domain.JobProcessing,
	}))
	_, err = svc.Submit(context.Background(), "pending", nil, domain.EvaluationParams{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEvaluateSubmitInheritsDifficulty(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	disp := &recordingDispatcher{}
	svc := usecase.NewEvaluateService(repo, disp)
	src := completedGeneration(t, repo)

	_, err := svc.Submit(context.Background(), src, nil, domain.EvaluationParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyMidLevel, disp.params.Difficulty, "falls back to the source request difficulty")
}

func TestStatusFetchShapes(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	svc := usecase.NewStatusService(repo)
	ctx := context.Background()

	code, _, _, err := svc.Fetch(ctx, "missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	require.NoError(t, repo.Create(ctx, domain.Job{ID: "p", Kind: domain.JobKindGeneration, State: domain.JobProcessing}))
	code, body, etag, err := svc.Fetch(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PROCESSING", body["state"])
	assert.NotContains(t, body, "questions")
	assert.NotEmpty(t, etag)

	require.NoError(t, repo.Complete(ctx, "p", domain.JobResult{
		Questions: []domain.QuestionItem{{ID: 1, Question: "Q", ReferenceAnswer: "A"}},
	}))
	code, body, _, err = svc.Fetch(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", body["state"])
	assert.Contains(t, body, "questions")

	require.NoError(t, repo.Create(ctx, domain.Job{
		ID: "ev", Kind: domain.JobKindEvaluation, State: domain.JobProcessing, DurationSec: 900,
	}))
	require.NoError(t, repo.Complete(ctx, "ev", domain.JobResult{
		Evaluations: []domain.EvaluationItem{{QuestionItem: domain.QuestionItem{ID: 1}}},
	}))
	_, body, _, err = svc.Fetch(ctx, "ev", "")
	require.NoError(t, err)
	assert.Contains(t, body, "evaluations")
	assert.Equal(t, 900, body["duration_seconds"])
}

func TestStatusFetchErrorEnvelope(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	svc := usecase.NewStatusService(repo)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.Job{ID: "e", Kind: domain.JobKindEvaluation, State: domain.JobProcessing}))
	require.NoError(t, repo.Fail(ctx, "e", "Processing exceeded the time limit."))

	_, body, _, err := svc.Fetch(ctx, "e", "")
	require.NoError(t, err)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TIMEOUT", errObj["code"])
	assert.Equal(t, "Processing exceeded the time limit.", errObj["message"])
}

func TestStatusFetchETagNotModified(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	svc := usecase.NewStatusService(repo)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.Job{ID: "p", Kind: domain.JobKindGeneration, State: domain.JobProcessing}))

	_, _, etag, err := svc.Fetch(ctx, "p", "")
	require.NoError(t, err)

	code, body, etag2, err := svc.Fetch(ctx, "p", etag)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, code)
	assert.Nil(t, body)
	assert.Equal(t, etag, etag2)
}

func TestCleanupDelete(t *testing.T) {
	t.Parallel()
	repo := memory.NewJobsRepo()
	svc := usecase.NewCleanupService(repo)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.Job{ID: "d", Kind: domain.JobKindGeneration, State: domain.JobProcessing}))
	require.NoError(t, svc.Delete(ctx, "d"))
	assert.ErrorIs(t, svc.Delete(ctx, "d"), domain.ErrJobNotFound)
}
