package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/interview-engine/internal/adapter/repo/redisstore"
	"github.com/prepwise/interview-engine/internal/domain"
)

func newTestRepo(t *testing.T) *redisstore.JobsRepo {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisstore.NewJobsRepo(rdb, 0)
}

func processingJob(id string) domain.Job {
	return domain.Job{ID: id, Kind: domain.JobKindGeneration, State: domain.JobProcessing}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, processingJob("a")))
	assert.ErrorIs(t, repo.Create(ctx, processingJob("a")), domain.ErrDuplicateJob)

	j, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobProcessing, j.State)
	assert.Equal(t, domain.JobKindGeneration, j.Kind)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestCompleteCAS(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, processingJob("a")))

	res := domain.JobResult{
		Questions: []domain.QuestionItem{{ID: 1, Question: "q", ReferenceAnswer: "r"}},
	}
	require.NoError(t, repo.Complete(ctx, "a", res))

	j, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, j.State)
	require.Len(t, j.Questions, 1)

	assert.ErrorIs(t, repo.Complete(ctx, "a", res), domain.ErrAlreadyTerminal)
	assert.ErrorIs(t, repo.Fail(ctx, "a", "late"), domain.ErrAlreadyTerminal)
}

func TestFailRecordsDiagnostic(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, processingJob("a")))
	require.NoError(t, repo.Fail(ctx, "a", "all providers failed"))

	j, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobError, j.State)
	assert.Equal(t, "all providers failed", j.Error)
}

func TestTerminalWriteOnDeletedJob(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, processingJob("a")))
	require.NoError(t, repo.Delete(ctx, "a"))

	assert.ErrorIs(t, repo.Complete(ctx, "a", domain.JobResult{}), domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.Fail(ctx, "a", "x"), domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "a"), domain.ErrJobNotFound)
}

func TestFailStaleSweepsOnlyOldProcessing(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, processingJob("old")))
	require.NoError(t, repo.Create(ctx, processingJob("done")))
	require.NoError(t, repo.Complete(ctx, "done", domain.JobResult{}))

	n, err := repo.FailStale(ctx, time.Now().Add(time.Minute), "stuck")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	j, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, domain.JobError, j.State)
	assert.Equal(t, "stuck", j.Error)

	j, err = repo.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, j.State)
}

func TestPurgeTerminal(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, processingJob("live")))
	require.NoError(t, repo.Create(ctx, processingJob("done")))
	require.NoError(t, repo.Complete(ctx, "done", domain.JobResult{}))

	n, err := repo.PurgeTerminal(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.Get(ctx, "done")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = repo.Get(ctx, "live")
	assert.NoError(t, err)
}
