package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prepwise/interview-engine/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// JobsRepo persists and loads jobs using a minimal pgx pool.
type JobsRepo struct{ Pool PgxPool }

// NewJobsRepo constructs a JobsRepo with the given pool.
func NewJobsRepo(p PgxPool) *JobsRepo { return &JobsRepo{Pool: p} }

var _ domain.JobRepository = (*JobsRepo)(nil)

type jobPayload struct {
	Request     *domain.GenerationRequest `json:"request,omitempty"`
	Questions   []domain.QuestionItem     `json:"questions,omitempty"`
	Evaluations []domain.EvaluationItem   `json:"evaluations,omitempty"`
	Summary     *domain.AggregateSummary  `json:"summary,omitempty"`
	DurationSec int                       `json:"duration_seconds,omitempty"`
}

// Create inserts a new job. A duplicate id maps to ErrDuplicateJob.
func (r *JobsRepo) Create(ctx domain.Context, j domain.Job) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "jobs"),
	)
	payload, err := json.Marshal(jobPayload{Request: j.Request, Questions: j.Questions, DurationSec: j.DurationSec})
	if err != nil {
		return fmt.Errorf("op=job.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO jobs (id, kind, state, error, payload, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, j.ID, j.Kind, j.State, j.Error, payload, now, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("op=job.create: id=%s: %w", j.ID, domain.ErrDuplicateJob)
		}
		return fmt.Errorf("op=job.create: %w", err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobsRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	q := `SELECT id, kind, state, COALESCE(error,''), payload, created_at, updated_at FROM jobs WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var j domain.Job
	var raw []byte
	if err := row.Scan(&j.ID, &j.Kind, &j.State, &j.Error, &raw, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: id=%s: %w", id, domain.ErrJobNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	var p jobPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.Job{}, fmt.Errorf("op=job.get: decode payload: %w", err)
		}
	}
	j.Request = p.Request
	j.Questions = p.Questions
	j.Evaluations = p.Evaluations
	j.Summary = p.Summary
	j.DurationSec = p.DurationSec
	return j, nil
}

// Complete records a successful terminal state. The UPDATE is guarded on
// state so a job that is already terminal (or deleted) is never touched.
func (r *JobsRepo) Complete(ctx domain.Context, id string, res domain.JobResult) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Complete")
	defer span.End()

	cur, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	questions := res.Questions
	if len(questions) == 0 {
		questions = cur.Questions
	}
	payload, err := json.Marshal(jobPayload{
		Request:     cur.Request,
		Questions:   questions,
		Evaluations: res.Evaluations,
		Summary:     res.Summary,
		DurationSec: cur.DurationSec,
	})
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	q := `UPDATE jobs SET state=$2, error='', payload=$3, updated_at=$4 WHERE id=$1 AND state=$5`
	tag, err := r.Pool.Exec(ctx, q, id, domain.JobCompleted, payload, time.Now().UTC(), domain.JobProcessing)
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	return r.checkCAS(ctx, "job.complete", id, tag)
}

// Fail records an error terminal state under the same CAS guard as Complete.
func (r *JobsRepo) Fail(ctx domain.Context, id string, diagnostic string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Fail")
	defer span.End()
	q := `UPDATE jobs SET state=$2, error=$3, updated_at=$4 WHERE id=$1 AND state=$5`
	tag, err := r.Pool.Exec(ctx, q, id, domain.JobError, diagnostic, time.Now().UTC(), domain.JobProcessing)
	if err != nil {
		return fmt.Errorf("op=job.fail: %w", err)
	}
	return r.checkCAS(ctx, "job.fail", id, tag)
}

// checkCAS distinguishes "row gone" from "row already terminal" when a
// guarded UPDATE matched nothing.
func (r *JobsRepo) checkCAS(ctx domain.Context, op, id string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var state domain.JobState
	err := r.Pool.QueryRow(ctx, `SELECT state FROM jobs WHERE id=$1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("op=%s: id=%s: %w", op, id, domain.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("op=%s: %w", op, err)
	}
	return fmt.Errorf("op=%s: id=%s state=%s: %w", op, id, state, domain.ErrAlreadyTerminal)
}

// Delete removes a job regardless of state.
func (r *JobsRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=job.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.delete: id=%s: %w", id, domain.ErrJobNotFound)
	}
	return nil
}

// FailStale fails PROCESSING jobs whose last update is older than cutoff.
func (r *JobsRepo) FailStale(ctx domain.Context, cutoff time.Time, diagnostic string) (int, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FailStale")
	defer span.End()
	q := `UPDATE jobs SET state=$1, error=$2, updated_at=$3 WHERE state=$4 AND updated_at < $5`
	tag, err := r.Pool.Exec(ctx, q, domain.JobError, diagnostic, time.Now().UTC(), domain.JobProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=job.fail_stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeTerminal deletes terminal jobs whose last update is older than cutoff.
func (r *JobsRepo) PurgeTerminal(ctx domain.Context, cutoff time.Time) (int, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.PurgeTerminal")
	defer span.End()
	q := `DELETE FROM jobs WHERE state IN ($1,$2) AND updated_at < $3`
	tag, err := r.Pool.Exec(ctx, q, domain.JobCompleted, domain.JobError, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=job.purge_terminal: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
