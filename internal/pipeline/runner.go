package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prepwise/interview-engine/internal/adapter/observability"
	"github.com/prepwise/interview-engine/internal/domain"
)

// Runner executes pipeline jobs in-process. Dispatch methods spawn one
// goroutine per job and return immediately; the goroutine runs under a
// fresh context bound only by Deadline, so client disconnects never cancel
// running work.
type Runner struct {
	Jobs      domain.JobRepository
	Generator *Generator
	Evaluator *Evaluator
	Deadline  time.Duration

	wg sync.WaitGroup
}

var _ domain.Dispatcher = (*Runner)(nil)

func (r *Runner) DispatchGeneration(jobID string, req domain.GenerationRequest) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.RunGeneration(jobID, req)
	}()
}

func (r *Runner) DispatchEvaluation(jobID string, items []domain.QuestionItem, p domain.EvaluationParams) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.RunEvaluation(jobID, items, p)
	}()
}

// Wait blocks until all dispatched jobs have reached a terminal write.
// Used on shutdown to drain in-flight work.
func (r *Runner) Wait() { r.wg.Wait() }

// RunGeneration drives one generation job to a terminal state.
func (r *Runner) RunGeneration(jobID string, req domain.GenerationRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Deadline)
	defer cancel()
	observability.StartJob(string(domain.JobKindGeneration))

	questions, err := r.Generator.Generate(ctx, req)
	if err != nil {
		r.fail(ctx, jobID, domain.JobKindGeneration, err)
		return
	}
	r.complete(ctx, jobID, domain.JobKindGeneration, domain.JobResult{Questions: questions})
}

// RunEvaluation drives one evaluation job to a terminal state. Skill
// extraction and overall feedback are best-effort and cannot fail the job.
func (r *Runner) RunEvaluation(jobID string, items []domain.QuestionItem, p domain.EvaluationParams) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Deadline)
	defer cancel()
	observability.StartJob(string(domain.JobKindEvaluation))

	evals, err := r.Evaluator.EvaluateBatch(ctx, items, p)
	if err != nil {
		r.fail(ctx, jobID, domain.JobKindEvaluation, err)
		return
	}
	skills := r.Evaluator.ExtractSkills(ctx, items)
	summary, err := Aggregate(evals, skills, r.Evaluator.SkillCount)
	if err != nil {
		r.fail(ctx, jobID, domain.JobKindEvaluation, err)
		return
	}
	summary.OverallFeedback = r.Evaluator.OverallFeedback(ctx, evals, p)

	observability.ObserveOverallScore(summary.OverallScore)
	r.complete(ctx, jobID, domain.JobKindEvaluation, domain.JobResult{
		Evaluations: evals,
		Summary:     &summary,
	})
}

// Terminal writes run under their own short context so a pipeline that
// burned the whole deadline can still record its outcome.
func (r *Runner) writeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (r *Runner) complete(_ context.Context, jobID string, kind domain.JobKind, res domain.JobResult) {
	ctx, cancel := r.writeCtx()
	defer cancel()
	if err := r.Jobs.Complete(ctx, jobID, res); err != nil {
		r.logTerminalWriteSkip("complete", jobID, err)
		observability.FailJob(string(kind))
		return
	}
	observability.CompleteJob(string(kind))
	slog.Info("job completed", slog.String("job_id", jobID), slog.String("kind", string(kind)))
}

func (r *Runner) fail(runCtx context.Context, jobID string, kind domain.JobKind, cause error) {
	diagnostic := diagnosticFor(runCtx, cause)
	ctx, cancel := r.writeCtx()
	defer cancel()
	if err := r.Jobs.Fail(ctx, jobID, diagnostic); err != nil {
		r.logTerminalWriteSkip("fail", jobID, err)
	}
	observability.FailJob(string(kind))
	slog.Error("job failed",
		slog.String("job_id", jobID),
		slog.String("kind", string(kind)),
		slog.String("diagnostic", diagnostic),
		slog.Any("error", cause))
}

// A job deleted or raced to terminal mid-flight must not be resurrected;
// both outcomes are logged and dropped.
func (r *Runner) logTerminalWriteSkip(op, jobID string, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		slog.Warn("job deleted before terminal write", slog.String("op", op), slog.String("job_id", jobID))
	case errors.Is(err, domain.ErrAlreadyTerminal):
		slog.Warn("job already terminal, dropping write", slog.String("op", op), slog.String("job_id", jobID))
	default:
		slog.Error("terminal write failed", slog.String("op", op), slog.String("job_id", jobID), slog.Any("error", err))
	}
}

func diagnosticFor(ctx context.Context, cause error) string {
	switch {
	case errors.Is(cause, domain.ErrDeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "Processing exceeded the time limit."
	case errors.Is(cause, domain.ErrProvider):
		return "All configured providers failed."
	case errors.Is(cause, domain.ErrUnparsableResponse):
		return "Invalid response format from the model."
	default:
		return fmt.Sprintf("Processing failed: %v", cause)
	}
}
