package attempt

import (
	"github.com/mind-engage/mindengage-quiz/internal/fault"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

var (
	ErrAttemptNotFound = fault.New(fault.NotFound, "attempt not found")
	ErrAnswerNotFound  = fault.New(fault.NotFound, "answer not found")

	ErrAttemptAlreadyTerminal = fault.New(fault.InvalidState, "attempt already finished")
	ErrAttemptInProgress      = fault.New(fault.InvalidState, "attempt already in progress")
	ErrAlreadyCompleted       = fault.New(fault.InvalidState, "quiz already completed")
	ErrQuestionExpired        = fault.New(fault.InvalidState, "question time expired")
	ErrAttemptExpired         = fault.New(fault.InvalidState, "attempt time expired")
	ErrQuestionNotExpired     = fault.New(fault.InvalidState, "question time has not expired")
	ErrAttemptNotExpired      = fault.New(fault.InvalidState, "attempt time has not expired")
	ErrQuestionsRemaining     = fault.New(fault.InvalidState, "attempt has unanswered questions")
	ErrAttemptNotTerminal     = fault.New(fault.InvalidState, "attempt not finished")
	ErrVersionConflict        = fault.New(fault.InvalidState, "attempt modified concurrently")
	ErrDuplicateAttempt       = fault.New(fault.InvalidState, "attempt exists for subject and quiz")

	ErrQuestionMismatch  = fault.New(fault.InvalidInput, "question is not the current question")
	ErrDuplicateAnswer   = fault.New(fault.InvalidInput, "question already answered")
	ErrNotManuallyGraded = fault.New(fault.InvalidInput, "answer is not manually graded")
	ErrInvalidGrade      = fault.New(fault.InvalidInput, "invalid grade")
	ErrInvalidArgument   = fault.New(fault.InvalidInput, "invalid argument")

	ErrEmptyQuiz         = quiz.ErrEmptyQuiz
	ErrMalformedResponse = grading.ErrMalformedResponse
)
