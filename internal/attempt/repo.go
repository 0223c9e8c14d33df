// Package attempt runs the attempt state machine and owns attempt persistence.
package attempt

import "context"

// Store persists attempts, answers and grades.
//
// UpdateAttempt and RecordAnswer take the attempt as last read: its Version
// must match the stored one, and the store writes Version+1. A mismatch is
// ErrVersionConflict and nothing is written.
type Store interface {
	// CreateAttempt fails with ErrDuplicateAttempt if the subject already has an attempt at the quiz.
	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	FindAttempt(ctx context.Context, subjectID, quizID string) (Attempt, error)
	UpdateAttempt(ctx context.Context, a Attempt) error
	// AppendAnswer fails with ErrDuplicateAnswer on a second answer for the same question.
	AppendAnswer(ctx context.Context, ans Answer) error
	// RecordAnswer appends ans and updates a in one atomic write.
	RecordAnswer(ctx context.Context, a Attempt, ans Answer) error
	// ListAnswers returns answers in seq order with grades attached.
	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)
	// PutGrade upserts the grade of an existing answer.
	PutGrade(ctx context.Context, attemptID, questionID string, g Grade) error
	ListAttempts(ctx context.Context, f Filter) ([]Attempt, error)
}
