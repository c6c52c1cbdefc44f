// Package pipeline runs generation and evaluation jobs end to end: prompt
// construction, provider calls through the fallback router, retry with
// backoff, and terminal job writes.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/prepwise/interview-engine/internal/domain"
)

const (
	maxResumeChars = 8000
	maxAnswerChars = 4000
	maxFieldChars  = 2000
)

// truncate limits s to n runes to keep prompts inside model context windows.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func languageInstruction(l domain.Language) string {
	if l == domain.LanguageEnglish || l == "" {
		return ""
	}
	return fmt.Sprintf("Write all questions, answers and feedback in %s.\n", l.Name())
}

// buildGenerationPrompt asks for a fixed-size question set as strict JSON.
func buildGenerationPrompt(req domain.GenerationRequest, count int) string {
	var b strings.Builder
	b.WriteString("You are a senior technical interviewer preparing a mock interview.\n\n")
	fmt.Fprintf(&b, "Role: %s\n", truncate(req.JobTitle, maxFieldChars))
	fmt.Fprintf(&b, "Seniority: %s (%d years of experience)\n", req.Difficulty, req.ExperienceYears)
	if req.TargetCompany != "" {
		fmt.Fprintf(&b, "Target company: %s\n", truncate(req.TargetCompany, maxFieldChars))
	}
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "\nJob description:\n%s\n", truncate(req.JobDescription, maxFieldChars))
	}
	if len(req.Skills) > 0 {
		fmt.Fprintf(&b, "\nKey skills: %s\n", strings.Join(req.Skills, ", "))
	}
	if req.ResumeText != "" {
		fmt.Fprintf(&b, "\nCandidate resume:\n%s\n", truncate(req.ResumeText, maxResumeChars))
	}
	b.WriteString("\n")
	b.WriteString(languageInstruction(req.Language))
	fmt.Fprintf(&b, "Produce exactly %d interview questions tailored to the role and the candidate's background, ", count)
	b.WriteString("each with a model reference answer.\n\n")
	b.WriteString("Respond with ONLY a JSON object in this exact shape, no markdown, no commentary:\n")
	b.WriteString(`{"questions": [{"id": 1, "question": "...", "reference_answer": "..."}]}`)
	return b.String()
}

// buildEvaluationPrompt scores the whole answered set in one call.
func buildEvaluationPrompt(items []domain.QuestionItem, p domain.EvaluationParams) string {
	var b strings.Builder
	b.WriteString("You are a strict technical interviewer grading a completed mock interview.\n\n")
	fmt.Fprintf(&b, "Seniority: %s (%d years of experience)\n\n", p.Difficulty, p.ExperienceYears)
	for _, it := range items {
		fmt.Fprintf(&b, "Question %d: %s\n", it.ID, truncate(it.Question, maxFieldChars))
		fmt.Fprintf(&b, "Reference answer: %s\n", truncate(it.ReferenceAnswer, maxFieldChars))
		fmt.Fprintf(&b, "Candidate answer: %s\n\n", truncate(it.CandidateAnswer, maxAnswerChars))
	}
	b.WriteString(languageInstruction(p.Language))
	b.WriteString("Score every answer from 0 to 100. An empty answer, or an answer that merely repeats the question, scores 0 on all dimensions.\n")
	b.WriteString("For each question give technical, communication and problem-solving sub-scores, concise feedback, and up to 3 learning resources.\n\n")
	b.WriteString("Respond with ONLY a JSON object in this exact shape, one entry per question in the same order, no markdown, no commentary:\n")
	b.WriteString(`{"evaluations": [{"id": 1, "score": 0, "technical_score": 0, "communication_score": 0, "problem_solving_score": 0, "feedback": "...", "learning_resources": [{"title": "...", "url": "...", "kind": "article", "description": "..."}]}]}`)
	return b.String()
}

// buildSkillsPrompt extracts the technologies the question set exercises.
func buildSkillsPrompt(items []domain.QuestionItem, count int) string {
	var b strings.Builder
	b.WriteString("Identify the technologies and skills exercised by these interview questions.\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", truncate(it.Question, maxFieldChars))
	}
	fmt.Fprintf(&b, "\nRespond with ONLY a JSON array of exactly %d short skill names, most prominent first:\n", count)
	b.WriteString(`["skill1", "skill2"]`)
	return b.String()
}

// buildOverallFeedbackPrompt summarizes a scored interview in prose.
func buildOverallFeedbackPrompt(evals []domain.EvaluationItem, p domain.EvaluationParams) string {
	var b strings.Builder
	b.WriteString("Summarize this candidate's mock interview performance in 2-4 sentences: strengths, weaknesses, and one concrete focus area.\n\n")
	for _, ev := range evals {
		fmt.Fprintf(&b, "Question %d (score %.0f/100): %s\n", ev.ID, ev.OverallScore, truncate(ev.Feedback, maxFieldChars))
	}
	b.WriteString("\n")
	b.WriteString(languageInstruction(p.Language))
	b.WriteString("Respond with plain prose only, no JSON, no markdown.")
	return b.String()
}
