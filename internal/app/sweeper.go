package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// staleDiagnostic is stored on jobs that never reached a terminal state,
// typically after a crash mid-pipeline. The word "stale" maps to the TIMEOUT
// error code in status responses.
const staleDiagnostic = "Job went stale: processing did not finish in time."

// Maintainer is the repository surface the sweeper needs. All job stores
// implement it.
type Maintainer interface {
	FailStale(ctx context.Context, cutoff time.Time, diagnostic string) (int, error)
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper periodically fails PROCESSING jobs that outlived the pipeline
// deadline plus a grace period, and purges terminal jobs past the retention
// window. A restart would otherwise leave crashed jobs PROCESSING forever.
type Sweeper struct {
	jobs            Maintainer
	staleAfter      time.Duration
	sweepInterval   time.Duration
	retention       time.Duration
	cleanupInterval time.Duration
}

// NewSweeper builds a sweeper. staleAfter should be the pipeline deadline
// plus a grace period so in-flight jobs are never swept.
func NewSweeper(jobs Maintainer, staleAfter, sweepInterval, retention, cleanupInterval time.Duration) *Sweeper {
	if jobs == nil {
		return nil
	}
	if staleAfter <= 0 {
		staleAfter = 3 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}
	return &Sweeper{
		jobs:            jobs,
		staleAfter:      staleAfter,
		sweepInterval:   sweepInterval,
		retention:       retention,
		cleanupInterval: cleanupInterval,
	}
}

// Run blocks until ctx is cancelled, sweeping stale jobs on every sweep tick
// and purging expired terminal jobs on every cleanup tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()
	cleanup := time.NewTicker(s.cleanupInterval)
	defer cleanup.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("job sweeper stopping")
			return
		case <-sweep.C:
			s.SweepOnce(ctx)
		case <-cleanup.C:
			s.PurgeOnce(ctx)
		}
	}
}

// SweepOnce fails every PROCESSING job not updated since the stale cutoff.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "Sweeper.SweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.staleAfter)
	span.SetAttributes(attribute.Float64("jobs.stale_after_seconds", s.staleAfter.Seconds()))

	n, err := s.jobs.FailStale(ctx, cutoff, staleDiagnostic)
	if err != nil {
		span.RecordError(err)
		slog.Error("stale job sweep failed", slog.Any("error", err))
		return
	}
	span.SetAttributes(attribute.Int("jobs.failed", n))
	if n > 0 {
		slog.Warn("stale jobs marked failed",
			slog.Int("count", n),
			slog.Time("cutoff", cutoff))
	}
}

// PurgeOnce deletes terminal jobs whose last update is older than the
// retention window.
func (s *Sweeper) PurgeOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "Sweeper.PurgeOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.retention)
	n, err := s.jobs.PurgeTerminal(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		slog.Error("terminal job purge failed", slog.Any("error", err))
		return
	}
	span.SetAttributes(attribute.Int("jobs.purged", n))
	if n > 0 {
		slog.Info("expired jobs purged",
			slog.Int("count", n),
			slog.Time("cutoff", cutoff))
	}
}
