package usecase

import (
	"fmt"
	"log/slog"

	"github.com/prepwise/interview-engine/internal/domain"
)

// CleanupService deletes a job and everything stored with it. Deleting a
// PROCESSING job is allowed; the in-flight pipeline drops its terminal
// write when it finds the record gone.
type CleanupService struct {
	Jobs domain.JobRepository
}

func NewCleanupService(jobs domain.JobRepository) CleanupService {
	return CleanupService{Jobs: jobs}
}

func (s CleanupService) Delete(ctx domain.Context, id string) error {
	if err := s.Jobs.Delete(ctx, id); err != nil {
		return fmt.Errorf("op=cleanup.delete: %w", err)
	}
	slog.Info("job deleted", slog.String("job_id", id))
	return nil
}
