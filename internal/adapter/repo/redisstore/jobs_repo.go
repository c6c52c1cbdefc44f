// Package redisstore persists jobs in Redis. Each job is a hash holding the
// state field and the JSON-encoded job; terminal transitions run through a
// Lua script so the state check and the write are atomic.
package redisstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepwise/interview-engine/internal/domain"
)

const (
	keyPrefix   = "job:"
	fieldState  = "state"
	fieldJob    = "job"
	fieldUpdate = "updated_at"
)

// casScript transitions a PROCESSING job to a terminal state.
// Returns 1 on success, 0 when already terminal, -1 when missing.
const casScript = `
local state = redis.call("HGET", KEYS[1], "state")
if state == false then
  return -1
end
if state ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "state", ARGV[2], "job", ARGV[3], "updated_at", ARGV[4])
return 1
`

type JobsRepo struct {
	rdb    *redis.Client
	script *redis.Script
	ttl    time.Duration
}

// NewJobsRepo constructs a JobsRepo. ttl > 0 bounds how long any job record
// lives, a coarse backstop for retention.
func NewJobsRepo(rdb *redis.Client, ttl time.Duration) *JobsRepo {
	return &JobsRepo{
		rdb:    rdb,
		script: redis.NewScript(casScript),
		ttl:    ttl,
	}
}

var _ domain.JobRepository = (*JobsRepo)(nil)

func jobKey(id string) string { return keyPrefix + id }

func (r *JobsRepo) Create(ctx domain.Context, j domain.Job) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("op=job.create: %w", err)
	}
	key := jobKey(j.ID)
	ok, err := r.rdb.HSetNX(ctx, key, fieldState, string(j.State)).Result()
	if err != nil {
		return fmt.Errorf("op=job.create: %w", err)
	}
	if !ok {
		return fmt.Errorf("op=job.create: id=%s: %w", j.ID, domain.ErrDuplicateJob)
	}
	if err := r.rdb.HSet(ctx, key, fieldJob, raw, fieldUpdate, now.Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("op=job.create: %w", err)
	}
	if r.ttl > 0 {
		if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
			return fmt.Errorf("op=job.create: %w", err)
		}
	}
	return nil
}

func (r *JobsRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	vals, err := r.rdb.HMGet(ctx, jobKey(id), fieldState, fieldJob).Result()
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	if vals[0] == nil || vals[1] == nil {
		return domain.Job{}, fmt.Errorf("op=job.get: id=%s: %w", id, domain.ErrJobNotFound)
	}
	var j domain.Job
	if err := json.Unmarshal([]byte(vals[1].(string)), &j); err != nil {
		return domain.Job{}, fmt.Errorf("op=job.get: decode: %w", err)
	}
	// The state field is authoritative; the JSON copy may lag a CAS write.
	j.State = domain.JobState(vals[0].(string))
	return j, nil
}

func (r *JobsRepo) Complete(ctx domain.Context, id string, res domain.JobResult) error {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	cur.State = domain.JobCompleted
	if len(res.Questions) > 0 {
		cur.Questions = res.Questions
	}
	cur.Evaluations = res.Evaluations
	cur.Summary = res.Summary
	cur.Error = ""
	cur.UpdatedAt = time.Now().UTC()
	return r.cas(ctx, "job.complete", id, cur)
}

func (r *JobsRepo) Fail(ctx domain.Context, id string, diagnostic string) error {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("op=job.fail: %w", err)
	}
	cur.State = domain.JobError
	cur.Error = diagnostic
	cur.UpdatedAt = time.Now().UTC()
	return r.cas(ctx, "job.fail", id, cur)
}

func (r *JobsRepo) cas(ctx domain.Context, op, id string, j domain.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("op=%s: %w", op, err)
	}
	n, err := r.script.Run(ctx, r.rdb, []string{jobKey(id)},
		string(domain.JobProcessing), string(j.State), raw, j.UpdatedAt.Format(time.RFC3339Nano)).Int()
	if err != nil {
		return fmt.Errorf("op=%s: %w", op, err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("op=%s: id=%s: %w", op, id, domain.ErrAlreadyTerminal)
	default:
		return fmt.Errorf("op=%s: id=%s: %w", op, id, domain.ErrJobNotFound)
	}
}

func (r *JobsRepo) Delete(ctx domain.Context, id string) error {
	n, err := r.rdb.Del(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("op=job.delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("op=job.delete: id=%s: %w", id, domain.ErrJobNotFound)
	}
	return nil
}

// FailStale scans for PROCESSING jobs whose last update is older than cutoff
// and fails them through the same CAS path.
func (r *JobsRepo) FailStale(ctx domain.Context, cutoff time.Time, diagnostic string) (int, error) {
	swept := 0
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(keyPrefix):]
		j, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if j.State != domain.JobProcessing || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := r.Fail(ctx, id, diagnostic); err == nil {
			swept++
		}
	}
	if err := iter.Err(); err != nil {
		return swept, fmt.Errorf("op=job.fail_stale: %w", err)
	}
	return swept, nil
}

// PurgeTerminal deletes terminal jobs older than cutoff.
func (r *JobsRepo) PurgeTerminal(ctx domain.Context, cutoff time.Time) (int, error) {
	purged := 0
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(keyPrefix):]
		j, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if !j.State.Terminal() || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := r.rdb.Del(ctx, key).Err(); err == nil {
			purged++
		}
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("op=job.purge_terminal: %w", err)
	}
	return purged, nil
}
