package pipeline

import (
	"fmt"
	"strings"

	"github.com/prepwise/interview-engine/internal/domain"
)

// Aggregate derives the summary scores from a completed batch. Skills are
// de-duplicated case-insensitively and capped at max; a set that came back
// short falls back to the generic skill.
func Aggregate(evals []domain.EvaluationItem, skills []string, maxSkills int) (domain.AggregateSummary, error) {
	if len(evals) == 0 {
		return domain.AggregateSummary{}, fmt.Errorf("op=pipeline.aggregate: %w", domain.ErrEmptyBatch)
	}
	var overall, technical, communication, problemSolving float64
	for _, ev := range evals {
		overall += ev.OverallScore
		technical += ev.TechnicalScore
		communication += ev.CommunicationScore
		problemSolving += ev.ProblemSolvingScore
	}
	n := float64(len(evals))

	unique := dedupeSkills(skills, maxSkills)
	if len(unique) < maxSkills {
		unique = []string{fallbackSkill}
	}
	return domain.AggregateSummary{
		OverallScore:        overall / n,
		TechnicalScore:      technical / n,
		CommunicationScore:  communication / n,
		ProblemSolvingScore: problemSolving / n,
		Skills:              unique,
	}, nil
}

func dedupeSkills(skills []string, max int) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, max)
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}
