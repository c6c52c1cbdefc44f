package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prepwise/interview-engine/internal/domain"
)

// StatusService assembles the polling response envelope for a job,
// including ETag logic for conditional responses.
type StatusService struct {
	Jobs domain.JobRepository
}

func NewStatusService(jobs domain.JobRepository) StatusService {
	return StatusService{Jobs: jobs}
}

// Fetch returns the HTTP status code, response body and ETag for a job id.
// If-None-Match matches produce 304 with an empty body.
func (s StatusService) Fetch(ctx domain.Context, id, ifNoneMatch string) (int, map[string]any, string, error) {
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return http.StatusNotFound, nil, "", fmt.Errorf("job not found: %w", domain.ErrJobNotFound)
		}
		return http.StatusInternalServerError, nil, "", err
	}

	m := map[string]any{"id": job.ID, "kind": string(job.Kind), "state": string(job.State)}
	switch job.State {
	case domain.JobError:
		m["error"] = map[string]any{
			"code":    errorCodeFromDiagnostic(job.Error),
			"message": job.Error,
		}
	case domain.JobCompleted:
		switch job.Kind {
		case domain.JobKindGeneration:
			m["questions"] = job.Questions
		case domain.JobKindEvaluation:
			m["evaluations"] = job.Evaluations
			if job.Summary != nil {
				m["summary"] = job.Summary
			}
			if job.DurationSec > 0 {
				m["duration_seconds"] = job.DurationSec
			}
		}
	}

	etag := makeETag(m)
	if etag == ifNoneMatch {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, m, etag, nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

// errorCodeFromDiagnostic maps a stored diagnostic to a stable error code.
func errorCodeFromDiagnostic(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.Contains(s, "time limit"), strings.Contains(s, "timeout"), strings.Contains(s, "deadline"):
		return "TIMEOUT"
	case strings.Contains(s, "provider"):
		return "PROVIDER_UNAVAILABLE"
	case strings.Contains(s, "invalid response"), strings.Contains(s, "invalid json"):
		return "SCHEMA_INVALID"
	case strings.Contains(s, "stale"), strings.Contains(s, "stuck"):
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}
