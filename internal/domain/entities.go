package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrJobNotFound         = errors.New("job not found")
	ErrDuplicateJob        = errors.New("duplicate job")
	ErrAlreadyTerminal     = errors.New("job already terminal")
	ErrEmptyBatch          = errors.New("empty evaluation batch")
	ErrProvider            = errors.New("provider error")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrUnparsableResponse  = errors.New("unparsable model response")
	ErrDeadlineExceeded    = errors.New("pipeline deadline exceeded")
)

// AllProvidersError reports that every configured provider was tried in
// order and none produced a usable completion. LastErrors keys are
// provider names.
type AllProvidersError struct {
	LastErrors map[string]error
}

func (e *AllProvidersError) Error() string {
	if len(e.LastErrors) == 0 {
		return "all providers failed"
	}
	names := make([]string, 0, len(e.LastErrors))
	for name := range e.LastErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.LastErrors[name]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

func (e *AllProvidersError) Unwrap() error { return ErrProvider }

// Difficulty enumerates supported interview seniority targets.
type Difficulty string

const (
	DifficultyJunior    Difficulty = "JUNIOR"
	DifficultyMidLevel  Difficulty = "MID_LEVEL"
	DifficultySenior    Difficulty = "SENIOR"
	DifficultyLead      Difficulty = "LEAD"
	DifficultyPrincipal Difficulty = "PRINCIPAL"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyJunior, DifficultyMidLevel, DifficultySenior, DifficultyLead, DifficultyPrincipal:
		return true
	}
	return false
}

// Language enumerates interview output languages.
type Language string

const (
	LanguageEnglish Language = "EN"
	LanguageFrench  Language = "FR"
	LanguageSpanish Language = "ES"
	LanguageGerman  Language = "DE"
	LanguageArabic  Language = "AR"
)

func (l Language) Valid() bool {
	switch l {
	case LanguageEnglish, LanguageFrench, LanguageSpanish, LanguageGerman, LanguageArabic:
		return true
	}
	return false
}

// Name returns the English name of the language for prompt construction.
func (l Language) Name() string {
	switch l {
	case LanguageFrench:
		return "French"
	case LanguageSpanish:
		return "Spanish"
	case LanguageGerman:
		return "German"
	case LanguageArabic:
		return "Arabic"
	default:
		return "English"
	}
}

type JobState string

const (
	JobProcessing JobState = "PROCESSING"
	JobCompleted  JobState = "COMPLETED"
	JobError      JobState = "ERROR"
)

func (s JobState) Terminal() bool { return s == JobCompleted || s == JobError }

type JobKind string

const (
	JobKindGeneration JobKind = "generation"
	JobKindEvaluation JobKind = "evaluation"
)

// GenerationRequest carries everything the question generator needs.
// ResumeText is sanitized plain text; Skills may be empty.
type GenerationRequest struct {
	JobTitle        string
	JobDescription  string
	ResumeText      string
	Skills          []string
	TargetCompany   string
	ExperienceYears int
	Difficulty      Difficulty
	Language        Language
}

// DifficultyOrDefault returns the request difficulty, or MID_LEVEL when the
// request is missing or carries an invalid value.
func (r *GenerationRequest) DifficultyOrDefault() Difficulty {
	if r == nil || !r.Difficulty.Valid() {
		return DifficultyMidLevel
	}
	return r.Difficulty
}

// EvaluationParams scopes a scoring pass over an answered question set.
type EvaluationParams struct {
	Difficulty      Difficulty
	ExperienceYears int
	Language        Language
	DurationSec     int
}

type QuestionItem struct {
	ID              int    `json:"id"`
	Question        string `json:"question"`
	ReferenceAnswer string `json:"reference_answer"`
	CandidateAnswer string `json:"candidate_answer,omitempty"`
}

type ResourceKind string

const (
	ResourceVideo         ResourceKind = "video"
	ResourceArticle       ResourceKind = "article"
	ResourceTutorial      ResourceKind = "tutorial"
	ResourceDocumentation ResourceKind = "documentation"
)

type LearningResource struct {
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Kind        ResourceKind `json:"kind"`
	Description string       `json:"description"`
}

type EvaluationItem struct {
	QuestionItem
	OverallScore        float64            `json:"overall_score"`
	TechnicalScore      float64            `json:"technical_score"`
	CommunicationScore  float64            `json:"communication_score"`
	ProblemSolvingScore float64            `json:"problem_solving_score"`
	Feedback            string             `json:"feedback"`
	LearningResources   []LearningResource `json:"learning_resources"`
}

// AggregateSummary is derived from a completed evaluation batch.
type AggregateSummary struct {
	OverallScore        float64  `json:"overall_score"`
	TechnicalScore      float64  `json:"technical_score"`
	CommunicationScore  float64  `json:"communication_score"`
	ProblemSolvingScore float64  `json:"problem_solving_score"`
	Skills              []string `json:"skills"`
	OverallFeedback     string   `json:"overall_feedback"`
}

// Job is the unit of async work. A job is created in PROCESSING and moves
// exactly once to COMPLETED or ERROR; terminal states never transition.
type Job struct {
	ID          string             `json:"id"`
	Kind        JobKind            `json:"kind"`
	State       JobState           `json:"state"`
	Request     *GenerationRequest `json:"request,omitempty"`
	Questions   []QuestionItem     `json:"questions,omitempty"`
	Evaluations []EvaluationItem   `json:"evaluations,omitempty"`
	Summary     *AggregateSummary  `json:"summary,omitempty"`
	DurationSec int                `json:"duration_seconds,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// JobResult is the payload of a successful completion write.
type JobResult struct {
	Questions   []QuestionItem
	Evaluations []EvaluationItem
	Summary     *AggregateSummary
}

// JobRepository (port)
//
// Complete and Fail are compare-and-set writes: they succeed only while the
// job is still PROCESSING, return ErrAlreadyTerminal once a terminal state
// has been recorded, and ErrJobNotFound if the job was deleted mid-flight.

type JobRepository interface {
	Create(ctx Context, j Job) error
	Get(ctx Context, id string) (Job, error)
	Complete(ctx Context, id string, res JobResult) error
	Fail(ctx Context, id string, diagnostic string) error
	Delete(ctx Context, id string) error
}

// ProviderClient (port)
// Generate sends a single prompt to one upstream model and returns the raw
// completion text without any post-processing.

type ProviderClient interface {
	Name() string
	Generate(ctx Context, prompt string) (string, error)
}

// Dispatcher (port)
// Implementations start pipeline work for an already-created job and return
// immediately; the job reaches a terminal state out of band.

type Dispatcher interface {
	DispatchGeneration(jobID string, req GenerationRequest)
	DispatchEvaluation(jobID string, items []QuestionItem, p EvaluationParams)
}

// TextExtractor (port)
// ExtractPath extracts plain text from a file at path with provided original
// filename. Implementations may call external services (e.g., Tika).

type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}

// Context is a type alias so ports stay readable without importing std
// context at every call site.

type Context = context.Context
