// Package timer derives remaining time from persisted timestamps and a trusted clock.
// It keeps no state; every answer is recomputed on demand.
package timer

import "time"

type Clock interface {
	Now() time.Time
}

// SystemClock is the server wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Remaining is max(0, limit - (now - startedAt)), capped at limit.
func Remaining(limit time.Duration, startedAt, now time.Time) time.Duration {
	left := limit - Elapsed(startedAt, now)
	if left < 0 {
		return 0
	}
	return left
}

// Expiry says which budget, if any, has run out.
type Expiry int

const (
	None Expiry = iota
	QuestionExpired
	AttemptExpired
)

func (e Expiry) String() string {
	switch e {
	case QuestionExpired:
		return "question_expired"
	case AttemptExpired:
		return "attempt_expired"
	default:
		return "none"
	}
}

// Budget describes the clocks running for one attempt. A zero AttemptLimit means no attempt budget.
type Budget struct {
	AttemptStarted  time.Time
	AttemptLimit    time.Duration
	QuestionStarted time.Time
	QuestionLimit   time.Duration
}

// Status is a snapshot of both clocks.
type Status struct {
	QuestionRemaining time.Duration
	AttemptRemaining  time.Duration // meaningful only when HasAttemptLimit
	HasAttemptLimit   bool
	Expiry            Expiry
}

// Check evaluates b at now. Attempt expiry pre-empts question expiry.
// grace is extra slack granted before a question counts as expired.
func Check(b Budget, now time.Time, grace time.Duration) Status {
	st := Status{QuestionRemaining: Remaining(b.QuestionLimit, b.QuestionStarted, now)}
	if b.AttemptLimit > 0 {
		st.HasAttemptLimit = true
		st.AttemptRemaining = Remaining(b.AttemptLimit, b.AttemptStarted, now)
		if st.AttemptRemaining == 0 {
			st.Expiry = AttemptExpired
			return st
		}
	}
	if Remaining(b.QuestionLimit+grace, b.QuestionStarted, now) == 0 {
		st.Expiry = QuestionExpired
	}
	return st
}

// Elapsed is now - since, floored at zero.
func Elapsed(since, now time.Time) time.Duration {
	if d := now.Sub(since); d > 0 {
		return d
	}
	return 0
}

// Seconds converts a whole-second count to a Duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }
