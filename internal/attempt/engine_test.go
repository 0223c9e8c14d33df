package attempt_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/fault"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
	"github.com/mind-engage/mindengage-quiz/internal/timer"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine *attempt.Engine
	store  attempt.Store
	clock  *timer.FakeClock
	events *events.Memory
}

func newFixture(t *testing.T, store attempt.Store, defs []quiz.Definition, opts ...attempt.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	qs := quiz.NewMemoryStore()
	for _, d := range defs {
		require.NoError(t, qs.Put(ctx, d))
	}
	if store == nil {
		store = attempt.NewMemoryStore()
	}
	f := &fixture{store: store, clock: timer.NewFakeClock(epoch), events: &events.Memory{}}
	opts = append([]attempt.Option{
		attempt.WithClock(f.clock),
		attempt.WithPublisher(f.events),
		attempt.WithQuestionGrace(2 * time.Second),
	}, opts...)
	f.engine = attempt.NewEngine(qs, store, opts...)
	return f
}

func single(id string, order, points int, correct, wrong string) quiz.Question {
	return quiz.Question{
		ID: id, Type: quiz.TypeMultipleChoice, Text: "pick " + correct, Points: points, TimeLimitSec: 30, Order: order,
		Choices: []quiz.Choice{{ID: correct, Text: correct, IsCorrect: true}, {ID: wrong, Text: wrong}},
	}
}

func twoQuestions(id string, limitSec int) quiz.Definition {
	return quiz.Definition{
		Quiz:      quiz.Quiz{ID: id, Title: "two", TimeLimitSec: limitSec},
		Questions: []quiz.Question{single("q1", 1, 10, "c1", "x1"), single("q2", 2, 10, "c2", "x2")},
	}
}

func pick(ids ...string) grading.Response { return grading.Selection{ChoiceIDs: ids} }

func TestScenarios(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("all correct passes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)

		p, err := f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 5)
		require.NoError(t, err)
		require.False(t, p.Finished)
		require.True(t, p.Outcome.IsCorrect)
		require.Equal(t, 1, p.Attempt.Cursor)

		p, err = f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("c2"), 5)
		require.NoError(t, err)
		require.True(t, p.Finished)
		require.Equal(t, attempt.StatusCompleted, p.Attempt.Status)
		require.Equal(t, 100.0, p.Attempt.Score)
		require.Equal(t, scoring.Passed, p.Attempt.Result)
		require.NotNil(t, p.Attempt.CompletedAt)

		require.Equal(t, []string{
			events.AttemptStarted, events.AnswerRecorded, events.AnswerRecorded, events.AttemptFinalized,
		}, f.events.Types())
	})

	t.Run("half correct fails default threshold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("x1"), 0)
		require.NoError(t, err)
		p, err := f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("c2"), 0)
		require.NoError(t, err)
		require.Equal(t, 50.0, p.Attempt.Score)
		require.Equal(t, scoring.Failed, p.Attempt.Result)
	})

	t.Run("placement levels", func(t *testing.T) {
		t.Parallel()
		def := quiz.Definition{
			Quiz: quiz.Quiz{ID: "place", IsPlacementTest: true},
			Questions: []quiz.Question{
				single("p1", 1, 30, "a", "b"),
				single("p2", 2, 50, "a", "b"),
				single("p3", 3, 20, "a", "b"),
			},
		}
		f := newFixture(t, nil, []quiz.Definition{def})
		run := func(subject string, answers ...string) attempt.Attempt {
			a, err := f.engine.StartAttempt(ctx, subject, "place")
			require.NoError(t, err)
			var p attempt.Progress
			for i, choice := range answers {
				p, err = f.engine.SubmitAnswer(ctx, a.ID, def.Questions[i].ID, pick(choice), 0)
				require.NoError(t, err)
			}
			require.True(t, p.Finished)
			return p.Attempt
		}
		low := run("s1", "a", "b", "b")
		require.Equal(t, 30.0, low.Score)
		require.Equal(t, scoring.Beginner, low.Result)

		high := run("s2", "a", "a", "b")
		require.Equal(t, 80.0, high.Score)
		require.Equal(t, scoring.Advanced, high.Result)
	})

	t.Run("second submit for the same question is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("x1"), 0)
		require.ErrorIs(t, err, attempt.ErrQuestionMismatch)

		answers, err := f.store.ListAnswers(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, answers, 1)
		require.True(t, answers[0].IsCorrect)
	})

	t.Run("expired question records zero and advances", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)

		f.clock.Advance(31 * time.Second)
		p, err := f.engine.ExpireCurrentQuestion(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 1, p.Attempt.Cursor)
		require.False(t, p.Finished)

		answers, err := f.store.ListAnswers(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, answers, 1)
		require.True(t, answers[0].Expired)
		require.Zero(t, answers[0].PointsEarned)
		require.Equal(t, 30, answers[0].TimeTakenSec)
		require.Equal(t, grading.KindNone, answers[0].Response.Kind())
	})
}

func TestStartAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("resume returns the open attempt", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		require.Equal(t, attempt.StatusInProgress, a.Status)
		require.Zero(t, a.Cursor)

		again, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.ErrorIs(t, err, attempt.ErrAttemptInProgress)
		require.Equal(t, a.ID, again.ID)
		require.Equal(t, []string{events.AttemptStarted}, f.events.Types())
	})

	t.Run("finished quiz cannot be restarted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("c2"), 0)
		require.NoError(t, err)

		_, err = f.engine.StartAttempt(ctx, "s1", "qz")
		require.ErrorIs(t, err, attempt.ErrAlreadyCompleted)
		require.ErrorIs(t, err, fault.InvalidState)
	})

	t.Run("empty quiz", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{{Quiz: quiz.Quiz{ID: "empty"}}})
		_, err := f.engine.StartAttempt(ctx, "s1", "empty")
		require.ErrorIs(t, err, attempt.ErrEmptyQuiz)
	})

	t.Run("unknown quiz", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, nil)
		_, err := f.engine.StartAttempt(ctx, "s1", "nope")
		require.ErrorIs(t, err, fault.NotFound)
	})

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		_, err := f.engine.StartAttempt(ctx, "", "qz")
		require.ErrorIs(t, err, fault.InvalidInput)
	})
}

func TestCurrentQuestion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 100)})
	a, err := f.engine.StartAttempt(ctx, "s1", "qz")
	require.NoError(t, err)

	cur, err := f.engine.CurrentQuestion(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 0, cur.Index)
	require.Equal(t, 2, cur.Total)
	require.Equal(t, "q1", cur.Question.ID)
	require.Len(t, cur.Question.Choices, 2)
	require.Equal(t, 30, cur.QuestionRemainingSec)
	require.True(t, cur.HasAttemptLimit)
	require.Equal(t, 100, cur.AttemptRemainingSec)
	require.Equal(t, "none", cur.Expiry)

	f.clock.Advance(10*time.Second + 200*time.Millisecond)
	cur, err = f.engine.CurrentQuestion(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 20, cur.QuestionRemainingSec)
	require.Equal(t, 90, cur.AttemptRemainingSec)

	f.clock.Advance(25 * time.Second)
	cur, err = f.engine.CurrentQuestion(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, cur.QuestionRemainingSec)
	require.Equal(t, "question_expired", cur.Expiry)

	f.clock.Advance(2 * time.Minute)
	cur, err = f.engine.CurrentQuestion(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "attempt_expired", cur.Expiry)
	require.Zero(t, cur.AttemptRemainingSec)

	_, err = f.engine.ExpireAttempt(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.engine.CurrentQuestion(ctx, a.ID)
	require.ErrorIs(t, err, attempt.ErrAttemptAlreadyTerminal)
}

func TestCurrentQuestionMatching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	def := quiz.Definition{
		Quiz: quiz.Quiz{ID: "m"},
		Questions: []quiz.Question{{
			ID: "q1", Type: quiz.TypeMatching, Points: 4, TimeLimitSec: 60,
			Choices: []quiz.Choice{
				{ID: "fr", Text: "France", MatchKey: "paris"},
				{ID: "de", Text: "Germany", MatchKey: "berlin"},
				{ID: "at", Text: "Austria", MatchKey: "vienna"},
			},
		}},
	}
	f := newFixture(t, nil, []quiz.Definition{def})
	a, err := f.engine.StartAttempt(ctx, "s1", "m")
	require.NoError(t, err)

	cur, err := f.engine.CurrentQuestion(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"berlin", "paris", "vienna"}, cur.Question.MatchKeys)

	p, err := f.engine.SubmitAnswer(ctx, a.ID, "q1",
		grading.Pairing{Pairs: map[string]string{"fr": "paris", "de": "berlin", "at": "vienna"}}, 0)
	require.NoError(t, err)
	require.True(t, p.Finished)
	require.Equal(t, 100.0, p.Attempt.Score)
}

func TestSubmitAnswer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("malformed response leaves cursor", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)

		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("zzz"), 0)
		require.ErrorIs(t, err, attempt.ErrMalformedResponse)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", grading.Text{Body: "c1"}, 0)
		require.ErrorIs(t, err, attempt.ErrMalformedResponse)

		got, err := f.engine.GetAttempt(ctx, a.ID)
		require.NoError(t, err)
		require.Zero(t, got.Cursor)
	})

	t.Run("wrong question", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("c2"), 0)
		require.ErrorIs(t, err, attempt.ErrQuestionMismatch)
	})

	t.Run("unknown attempt", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		_, err := f.engine.SubmitAnswer(ctx, "missing", "q1", pick("c1"), 0)
		require.ErrorIs(t, err, attempt.ErrAttemptNotFound)
	})

	t.Run("question deadline with grace", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)

		f.clock.Advance(31 * time.Second)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
		require.NoError(t, err, "one second late is within grace")

		f.clock.Advance(33 * time.Second)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("c2"), 0)
		require.ErrorIs(t, err, attempt.ErrQuestionExpired)
	})

	t.Run("attempt deadline", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 45)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		f.clock.Advance(20 * time.Second)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
		require.NoError(t, err)

		f.clock.Advance(26 * time.Second)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("c2"), 0)
		require.ErrorIs(t, err, attempt.ErrAttemptExpired)
	})

	t.Run("time taken is bounded by the server clock", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		f.clock.Advance(5 * time.Second)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 999)
		require.NoError(t, err)
		f.clock.Advance(8 * time.Second)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("c2"), 3)
		require.NoError(t, err)

		answers, err := f.store.ListAnswers(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 5, answers[0].TimeTakenSec)
		require.Equal(t, 3, answers[1].TimeTakenSec)
	})

	t.Run("terminal attempt", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 10)})
		a, err := f.engine.StartAttempt(ctx, "s1", "qz")
		require.NoError(t, err)
		f.clock.Advance(11 * time.Second)
		_, err = f.engine.ExpireAttempt(ctx, a.ID)
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
		require.ErrorIs(t, err, attempt.ErrAttemptAlreadyTerminal)
	})
}

func TestConcurrentSubmitHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
	a, err := f.engine.StartAttempt(ctx, "s1", "qz")
	require.NoError(t, err)

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, attempt.ErrQuestionMismatch)
	}
	require.Equal(t, 1, wins)

	answers, err := f.store.ListAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	got, err := f.engine.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Cursor)
}

// failingStore rejects answer writes as an unavailable database would.
type failingStore struct {
	attempt.Store
}

func (failingStore) RecordAnswer(context.Context, attempt.Attempt, attempt.Answer) error {
	return fault.Dependency(errors.New("connection refused"), "record answer")
}

func TestDependencyFailureKeepsCursor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, failingStore{attempt.NewMemoryStore()}, []quiz.Definition{twoQuestions("qz", 0)})
	a, err := f.engine.StartAttempt(ctx, "s1", "qz")
	require.NoError(t, err)

	_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
	require.ErrorIs(t, err, fault.DependencyFailure)

	got, err := f.engine.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, got.Cursor)
	require.Equal(t, int64(1), got.Version)
	answers, err := f.store.ListAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, answers)
	require.Equal(t, []string{events.AttemptStarted}, f.events.Types())
}

func TestExpireAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 40), twoQuestions("open", 0)})
	a, err := f.engine.StartAttempt(ctx, "s1", "qz")
	require.NoError(t, err)

	_, err = f.engine.ExpireAttempt(ctx, a.ID)
	require.ErrorIs(t, err, attempt.ErrAttemptNotExpired)

	_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
	require.NoError(t, err)
	f.clock.Advance(41 * time.Second)

	_, err = f.engine.ExpireCurrentQuestion(ctx, a.ID)
	require.ErrorIs(t, err, attempt.ErrAttemptExpired)

	v, err := f.engine.ExpireAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.StatusTimedOut, v.Attempt.Status)
	require.Equal(t, 50.0, v.Attempt.Score)
	require.Equal(t, scoring.Failed, v.Attempt.Result)
	require.Equal(t, 10, v.Earned)
	require.Equal(t, 20, v.TotalPoints)
	require.Len(t, v.Answers, 1)

	_, err = f.engine.ExpireAttempt(ctx, a.ID)
	require.ErrorIs(t, err, attempt.ErrAttemptAlreadyTerminal)

	open, err := f.engine.StartAttempt(ctx, "s1", "open")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.engine.ExpireAttempt(ctx, open.ID)
	require.ErrorIs(t, err, attempt.ErrAttemptNotExpired, "no attempt budget never expires")
}

func TestExpireCurrentQuestionBeforeDeadline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
	a, err := f.engine.StartAttempt(ctx, "s1", "qz")
	require.NoError(t, err)
	f.clock.Advance(29 * time.Second)
	_, err = f.engine.ExpireCurrentQuestion(ctx, a.ID)
	require.ErrorIs(t, err, attempt.ErrQuestionNotExpired)

	f.clock.Advance(time.Second)
	p, err := f.engine.ExpireCurrentQuestion(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, p.Attempt.Cursor)

	f.clock.Advance(30 * time.Second)
	p, err = f.engine.ExpireCurrentQuestion(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, p.Finished)
	require.Zero(t, p.Attempt.Score)
	require.Equal(t, attempt.StatusCompleted, p.Attempt.Status)
}

func TestFinalize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0)})
	a, err := f.engine.StartAttempt(ctx, "s1", "qz")
	require.NoError(t, err)

	_, err = f.engine.Finalize(ctx, a.ID)
	require.ErrorIs(t, err, attempt.ErrQuestionsRemaining)

	_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
	require.NoError(t, err)
	done, err := f.engine.SubmitAnswer(ctx, a.ID, "q2", pick("x2"), 0)
	require.NoError(t, err)

	first, err := f.engine.Finalize(ctx, a.ID)
	require.NoError(t, err)
	second, err := f.engine.Finalize(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, done.Attempt.Score, first.Attempt.Score)
	require.Equal(t, done.Attempt.Version, first.Attempt.Version)

	finalized := 0
	for _, typ := range f.events.Types() {
		if typ == events.AttemptFinalized {
			finalized++
		}
	}
	require.Equal(t, 1, finalized)
}

func manualQuiz() quiz.Definition {
	return quiz.Definition{
		Quiz: quiz.Quiz{ID: "essay", PassThreshold: 75},
		Questions: []quiz.Question{
			single("q1", 1, 10, "c1", "x1"),
			{ID: "q2", Type: quiz.TypeLongAnswer, Text: "discuss", Points: 10, TimeLimitSec: 120, Order: 2},
		},
	}
}

func TestManualGradeAndRecompute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, []quiz.Definition{manualQuiz()})
	a, err := f.engine.StartAttempt(ctx, "s1", "essay")
	require.NoError(t, err)

	_, err = f.engine.SubmitAnswer(ctx, a.ID, "q1", pick("c1"), 0)
	require.NoError(t, err)

	_, err = f.engine.Recompute(ctx, a.ID)
	require.ErrorIs(t, err, attempt.ErrAttemptNotTerminal)

	p, err := f.engine.SubmitAnswer(ctx, a.ID, "q2", grading.Text{Body: "it depends"}, 0)
	require.NoError(t, err)
	require.True(t, p.Outcome.NeedsManual)
	require.Equal(t, 50.0, p.Attempt.Score)
	require.Equal(t, scoring.Failed, p.Attempt.Result)

	pending, err := f.engine.PendingGrading(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "q2", pending[0].QuestionID)

	_, err = f.engine.ApplyManualGrade(ctx, a.ID, "q1", attempt.GradeInput{Points: 5})
	require.ErrorIs(t, err, attempt.ErrNotManuallyGraded)
	_, err = f.engine.ApplyManualGrade(ctx, a.ID, "q2", attempt.GradeInput{Points: 11})
	require.ErrorIs(t, err, attempt.ErrInvalidGrade)
	_, err = f.engine.ApplyManualGrade(ctx, a.ID, "q2", attempt.GradeInput{Points: -1})
	require.ErrorIs(t, err, attempt.ErrInvalidGrade)
	_, err = f.engine.ApplyManualGrade(ctx, a.ID, "q9", attempt.GradeInput{Points: 1})
	require.ErrorIs(t, err, attempt.ErrAnswerNotFound)

	in := attempt.GradeInput{IsCorrect: true, Points: 9, Feedback: "good", GradedBy: "t1"}
	ans, err := f.engine.ApplyManualGrade(ctx, a.ID, "q2", in)
	require.NoError(t, err)
	require.Equal(t, 9, ans.EffectivePoints())
	require.True(t, ans.EffectiveCorrect())

	f.clock.Advance(time.Minute)
	_, err = f.engine.ApplyManualGrade(ctx, a.ID, "q2", in)
	require.NoError(t, err)

	stored, err := f.store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 50.0, stored.Score, "grading alone does not rescore")

	v, err := f.engine.Recompute(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 95.0, v.Attempt.Score)
	require.Equal(t, scoring.Passed, v.Attempt.Result)
	require.Equal(t, attempt.StatusCompleted, v.Attempt.Status)
	require.Equal(t, p.Attempt.CompletedAt, v.Attempt.CompletedAt)
	require.Zero(t, v.PendingManual)
	require.Equal(t, 19, v.Earned)

	again, err := f.engine.Recompute(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, v.Attempt.Version, again.Attempt.Version)

	kinds := f.events.Types()
	count := func(typ string) int {
		n := 0
		for _, k := range kinds {
			if k == typ {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, count(events.GradeApplied), "identical regrade is a no-op")
	require.Equal(t, 1, count(events.AttemptRescored))

	res, err := f.engine.GetResult(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, v, res)
}

// memFS is a BlobStore kept in a map, keyed by ref.
type memFS struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memFS) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = map[string][]byte{}
	}
	m.blobs[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memFS) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrBlobNotFound
}

func TestSubmitFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	def := quiz.Definition{
		Quiz: quiz.Quiz{ID: "rec"},
		Questions: []quiz.Question{
			{ID: "v1", Type: quiz.TypeVoiceRecord, Text: "say hi", Points: 5, TimeLimitSec: 60, Order: 1},
			single("q2", 2, 5, "c", "x"),
		},
	}
	blobs := &memFS{}
	f := newFixture(t, nil, []quiz.Definition{def}, attempt.WithBlobStore(blobs))
	a, err := f.engine.StartAttempt(ctx, "s1", "rec")
	require.NoError(t, err)

	_, err = f.engine.SubmitFile(ctx, a.ID, "v1", nil, "audio/webm", 3, 0)
	require.ErrorIs(t, err, attempt.ErrMalformedResponse)

	p, err := f.engine.SubmitFile(ctx, a.ID, "v1", []byte("RIFF"), "audio/webm", 3, 0)
	require.NoError(t, err)
	require.True(t, p.Outcome.NeedsManual)
	require.Len(t, blobs.blobs, 1)

	_, err = f.engine.SubmitFile(ctx, a.ID, "q2", []byte("x"), "text/plain", 0, 0)
	require.ErrorIs(t, err, attempt.ErrMalformedResponse)

	answers, err := f.store.ListAnswers(ctx, a.ID)
	require.NoError(t, err)
	up, ok := answers[0].Response.(grading.Upload)
	require.True(t, ok)
	require.Contains(t, blobs.blobs, up.Ref)
	require.Equal(t, 3, up.DurationSec)
}

func TestListAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n := 0
	f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0), twoQuestions("qy", 0)},
		attempt.WithIDGenerator(func() string { n++; return fmt.Sprintf("att-%d", n) }))
	for _, s := range []string{"s1", "s2", "s3"} {
		_, err := f.engine.StartAttempt(ctx, s, "qz")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	_, err := f.engine.StartAttempt(ctx, "s1", "qy")
	require.NoError(t, err)

	all, err := f.engine.ListAttempts(ctx, attempt.Filter{QuizID: "qz"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "s1", all[0].SubjectID)
	require.Equal(t, "att-1", all[0].ID)

	mine, err := f.engine.ListAttempts(ctx, attempt.Filter{SubjectID: "s1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	paged, err := f.engine.ListAttempts(ctx, attempt.Filter{QuizID: "qz", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, "s2", paged[0].SubjectID)
}

type gaugeRecorder struct {
	metrics.Nop
	mu   sync.Mutex
	last int
}

func (g *gaugeRecorder) InProgress(n int) {
	g.mu.Lock()
	g.last = n
	g.mu.Unlock()
}

func TestSweeper(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gauge := &gaugeRecorder{last: -1}
	f := newFixture(t, nil, []quiz.Definition{twoQuestions("qz", 0), twoQuestions("short", 50)},
		attempt.WithMetrics(gauge))
	sw := attempt.NewSweeper(f.engine, time.Second)

	perQuestion, err := f.engine.StartAttempt(ctx, "s1", "qz")
	require.NoError(t, err)
	whole, err := f.engine.StartAttempt(ctx, "s2", "short")
	require.NoError(t, err)

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 2, gauge.last)

	f.clock.Advance(31 * time.Second)
	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n, "both current questions expired")

	got, err := f.engine.GetAttempt(ctx, perQuestion.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Cursor)

	f.clock.Advance(20 * time.Second)
	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	got, err = f.engine.GetAttempt(ctx, whole.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.StatusTimedOut, got.Status)
	require.Equal(t, 1, gauge.last)

	f.clock.Advance(11 * time.Second)
	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	got, err = f.engine.GetAttempt(ctx, perQuestion.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.StatusCompleted, got.Status)
	require.Zero(t, got.Score)
	require.Zero(t, gauge.last)
}
