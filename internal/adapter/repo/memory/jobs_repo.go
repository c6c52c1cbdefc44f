// Package memory provides an in-process job store with the same
// compare-and-set semantics as the persistent backends. Used in dev mode
// and in tests.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/prepwise/interview-engine/internal/domain"
)

type JobsRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func NewJobsRepo() *JobsRepo {
	return &JobsRepo{jobs: make(map[string]domain.Job)}
}

var _ domain.JobRepository = (*JobsRepo)(nil)

func (r *JobsRepo) Create(_ domain.Context, j domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("op=job.create: id=%s: %w", j.ID, domain.ErrDuplicateJob)
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	r.jobs[j.ID] = j
	return nil
}

func (r *JobsRepo) Get(_ domain.Context, id string) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("op=job.get: id=%s: %w", id, domain.ErrJobNotFound)
	}
	return j, nil
}

func (r *JobsRepo) Complete(_ domain.Context, id string, res domain.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("op=job.complete: id=%s: %w", id, domain.ErrJobNotFound)
	}
	if j.State.Terminal() {
		return fmt.Errorf("op=job.complete: id=%s state=%s: %w", id, j.State, domain.ErrAlreadyTerminal)
	}
	j.State = domain.JobCompleted
	if len(res.Questions) > 0 {
		j.Questions = res.Questions
	}
	j.Evaluations = res.Evaluations
	j.Summary = res.Summary
	j.Error = ""
	j.UpdatedAt = time.Now().UTC()
	r.jobs[id] = j
	return nil
}

func (r *JobsRepo) Fail(_ domain.Context, id string, diagnostic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("op=job.fail: id=%s: %w", id, domain.ErrJobNotFound)
	}
	if j.State.Terminal() {
		return fmt.Errorf("op=job.fail: id=%s state=%s: %w", id, j.State, domain.ErrAlreadyTerminal)
	}
	j.State = domain.JobError
	j.Error = diagnostic
	j.UpdatedAt = time.Now().UTC()
	r.jobs[id] = j
	return nil
}

func (r *JobsRepo) Delete(_ domain.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return fmt.Errorf("op=job.delete: id=%s: %w", id, domain.ErrJobNotFound)
	}
	delete(r.jobs, id)
	return nil
}

// FailStale moves PROCESSING jobs older than cutoff to ERROR and returns
// how many were swept.
func (r *JobsRepo) FailStale(_ domain.Context, cutoff time.Time, diagnostic string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.State == domain.JobProcessing && j.UpdatedAt.Before(cutoff) {
			j.State = domain.JobError
			j.Error = diagnostic
			j.UpdatedAt = time.Now().UTC()
			r.jobs[id] = j
			n++
		}
	}
	return n, nil
}

// PurgeTerminal deletes terminal jobs older than cutoff and returns how
// many were removed.
func (r *JobsRepo) PurgeTerminal(_ domain.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.State.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}
