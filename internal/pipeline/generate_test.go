package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/interview-engine/internal/adapter/ai"
	"github.com/prepwise/interview-engine/internal/domain"
)

// scriptedGenerator returns one canned response (or error) per call, in
// order, repeating the last entry once exhausted.
type scriptedGenerator struct {
	outs  []string
	errs  []error
	calls int
}

func (s *scriptedGenerator) Generate(_ context.Context, _ string) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outs) {
		i = len(s.outs) - 1
	}
	return s.outs[i], s.errs[i]
}

func testRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		JobTitle:        "Backend Engineer",
		Difficulty:      domain.DifficultySenior,
		Language:        domain.LanguageEnglish,
		ExperienceYears: 7,
		Skills:          []string{"Go", "PostgreSQL"},
	}
}

func newTestGenerator(router TextGenerator) *Generator {
	return &Generator{
		Router:        router,
		Parser:        ai.NewRepairParser(),
		QuestionCount: 5,
		MaxRetries:    3,
		RetryWait:     time.Millisecond,
	}
}

func fiveQuestionsJSON() string {
	return `{"questions":[
		{"id":1,"question":"Q1","reference_answer":"A1"},
		{"id":2,"question":"Q2","reference_answer":"A2"},
		{"id":3,"question":"Q3","reference_answer":"A3"},
		{"id":4,"question":"Q4","reference_answer":"A4"},
		{"id":5,"question":"Q5","reference_answer":"A5"}]}`
}

func TestGenerateHappyPath(t *testing.T) {
	t.Parallel()
	router := &scriptedGenerator{outs: []string{fiveQuestionsJSON()}, errs: []error{nil}}
	g := newTestGenerator(router)

	items, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, i+1, it.ID, "ids must be sequential from 1")
		assert.Equal(t, fmt.Sprintf("Q%d", i+1), it.Question)
		assert.Equal(t, fmt.Sprintf("A%d", i+1), it.ReferenceAnswer)
	}
	assert.Equal(t, 1, router.calls)
}

func TestGeneratePadsShortSet(t *testing.T) {
	t.Parallel()
	short := `{"questions":[{"id":1,"question":"Only one","reference_answer":""}]}`
	router := &scriptedGenerator{outs: []string{short}, errs: []error{nil}}
	g := newTestGenerator(router)

	items, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Equal(t, "Only one", items[0].Question)
	assert.Equal(t, defaultReferenceAnswer, items[0].ReferenceAnswer)
	assert.Equal(t, "Additional question 2", items[1].Question)
	assert.Equal(t, defaultReferenceAnswer, items[4].ReferenceAnswer)
}

func TestGenerateTruncatesOversizedSet(t *testing.T) {
	t.Parallel()
	var extra string
	for i := 1; i <= 8; i++ {
		if i > 1 {
			extra += ","
		}
		extra += fmt.Sprintf(`{"id":%d,"question":"Q%d","reference_answer":"A%d"}`, i, i, i)
	}
	router := &scriptedGenerator{outs: []string{`{"questions":[` + extra + `]}`}, errs: []error{nil}}
	g := newTestGenerator(router)

	items, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, "Q5", items[4].Question)
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	router := &scriptedGenerator{
		outs: []string{"", "not json at all", fiveQuestionsJSON()},
		errs: []error{errors.New("transient"), nil, nil},
	}
	g := newTestGenerator(router)

	items, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, 3, router.calls)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	t.Parallel()
	router := &scriptedGenerator{outs: []string{""}, errs: []error{errors.New("down")}}
	g := newTestGenerator(router)

	_, err := g.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, 3, router.calls, "exactly MaxRetries attempts")
}

func TestGenerateStopsOnDeadline(t *testing.T) {
	t.Parallel()
	router := &scriptedGenerator{outs: []string{""}, errs: []error{errors.New("down")}}
	g := newTestGenerator(router)
	g.RetryWait = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, testRequest())
	require.Error(t, err)
	assert.Less(t, router.calls, 3)
}
