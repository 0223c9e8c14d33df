package quiz_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/fault"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func sampleDefinition() quiz.Definition {
	return quiz.Definition{
		Quiz: quiz.Quiz{ID: "qz1", Title: "Basics", PassThreshold: 60, TimeLimitSec: 600},
		Questions: []quiz.Question{
			{ID: "q2", Type: quiz.TypeMultiSelect, Text: "pick primes", Points: 2, TimeLimitSec: 30, Order: 2,
				Choices: []quiz.Choice{{ID: "a", Text: "2", IsCorrect: true}, {ID: "b", Text: "4"}, {ID: "c", Text: "5", IsCorrect: true}}},
			{ID: "q1", Type: quiz.TypeTrueFalse, Text: "sky is blue", Points: 1, TimeLimitSec: 20, Order: 1,
				Choices: []quiz.Choice{{ID: "t", Text: "true", IsCorrect: true}, {ID: "f", Text: "false"}}},
			{ID: "q3", Type: quiz.TypeShortAnswer, Text: "explain", Points: 3, TimeLimitSec: 60, Order: 3},
		},
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("orders questions and attaches choices", func(t *testing.T) {
		t.Parallel()
		store := quiz.NewMemoryStore()
		require.NoError(t, store.Put(ctx, sampleDefinition()))

		d, err := quiz.Load(ctx, store, "qz1")
		require.NoError(t, err)
		require.Equal(t, []string{"q1", "q2", "q3"}, d.QuestionIDs())
		require.Equal(t, 6, d.TotalPoints())
		require.Len(t, d.Questions[1].Choices, 3)
		require.Empty(t, d.Questions[2].Choices)
	})

	t.Run("missing quiz", func(t *testing.T) {
		t.Parallel()
		_, err := quiz.Load(ctx, quiz.NewMemoryStore(), "nope")
		require.ErrorIs(t, err, quiz.ErrQuizNotFound)
		require.ErrorIs(t, err, fault.NotFound)
	})

	t.Run("empty quiz", func(t *testing.T) {
		t.Parallel()
		store := quiz.NewMemoryStore()
		require.NoError(t, store.Put(ctx, quiz.Definition{Quiz: quiz.Quiz{ID: "empty"}}))
		_, err := quiz.Load(ctx, store, "empty")
		require.ErrorIs(t, err, quiz.ErrEmptyQuiz)
		require.ErrorIs(t, err, fault.InvalidInput)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mutate := func(f func(d *quiz.Definition)) *quiz.Definition {
		d := sampleDefinition()
		f(&d)
		return &d
	}
	tests := []struct {
		name string
		def  *quiz.Definition
	}{
		{"unknown type", mutate(func(d *quiz.Definition) { d.Questions[0].Type = "essay" })},
		{"zero points", mutate(func(d *quiz.Definition) { d.Questions[0].Points = 0 })},
		{"zero time limit", mutate(func(d *quiz.Definition) { d.Questions[1].TimeLimitSec = 0 })},
		{"select without choices", mutate(func(d *quiz.Definition) { d.Questions[1].Choices = nil })},
		{"two correct single-select", mutate(func(d *quiz.Definition) { d.Questions[1].Choices[1].IsCorrect = true })},
		{"multi-select without correct", mutate(func(d *quiz.Definition) {
			for i := range d.Questions[0].Choices {
				d.Questions[0].Choices[i].IsCorrect = false
			}
		})},
		{"matching without key", mutate(func(d *quiz.Definition) { d.Questions[0].Type = quiz.TypeMatching })},
		{"duplicate id", mutate(func(d *quiz.Definition) { d.Questions[2].ID = "q1" })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, quiz.Validate(tt.def), quiz.ErrInvalidDefinition)
		})
	}

	t.Run("valid", func(t *testing.T) {
		d := sampleDefinition()
		require.NoError(t, quiz.Validate(&d))
	})
}

func TestSeed(t *testing.T) {
	t.Parallel()
	const seed = `[
	  {"id": "p1", "title": "Placement", "is_placement_test": true,
	   "questions": [
	     {"id": "x1", "type": "dropdown", "text": "pick", "points": 5, "time_limit_sec": 30, "difficulty": "beginner",
	      "choices": [{"id": "a", "text": "A", "is_correct": true}, {"id": "b", "text": "B"}]}
	   ]},
	  {"id": "g1", "title": "Graded", "questions": []}
	]`
	store := quiz.NewMemoryStore()
	n, err := quiz.Seed(context.Background(), store, strings.NewReader(seed))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	d, err := quiz.Load(context.Background(), store, "p1")
	require.NoError(t, err)
	require.True(t, d.Quiz.IsPlacementTest)
	require.Equal(t, quiz.Beginner, d.Questions[0].Difficulty)

	g, err := store.GetQuiz(context.Background(), "g1")
	require.NoError(t, err)
	require.InDelta(t, quiz.DefaultPassThreshold, g.PassThreshold, 0.0001)
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	h, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSQLStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := quiz.NewSQLStore(openSQLite(t))

	require.NoError(t, store.Put(ctx, sampleDefinition()))
	// re-putting replaces rows instead of conflicting
	require.NoError(t, store.Put(ctx, sampleDefinition()))

	d, err := quiz.Load(ctx, store, "qz1")
	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q2", "q3"}, d.QuestionIDs())
	require.Equal(t, 600, d.Quiz.TimeLimitSec)
	require.Equal(t, []quiz.Choice{
		{ID: "a", Text: "2", IsCorrect: true}, {ID: "b", Text: "4"}, {ID: "c", Text: "5", IsCorrect: true},
	}, d.Questions[1].Choices)

	_, err = store.GetQuiz(ctx, "missing")
	require.ErrorIs(t, err, quiz.ErrQuizNotFound)
}
