package attempt

import (
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusTimedOut   Status = "timed_out"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusTimedOut }

// Attempt is one subject's run through one quiz.
// Cursor always equals the number of persisted answers.
type Attempt struct {
	ID                string         `json:"id"`
	QuizID            string         `json:"quiz_id"`
	SubjectID         string         `json:"subject_id"`
	Status            Status         `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Score             float64        `json:"score"`
	Result            scoring.Result `json:"result,omitempty"`
	Cursor            int            `json:"cursor"`
	QuestionStartedAt time.Time      `json:"question_started_at"`
	Version           int64          `json:"version"`
}

// Grade is a human decision on a manually graded answer.
type Grade struct {
	IsCorrect bool      `json:"is_correct"`
	Points    int       `json:"points"`
	Feedback  string    `json:"feedback,omitempty"`
	GradedBy  string    `json:"graded_by,omitempty"`
	GradedAt  time.Time `json:"graded_at"`
}

func (g Grade) same(o Grade) bool {
	return g.IsCorrect == o.IsCorrect && g.Points == o.Points && g.Feedback == o.Feedback && g.GradedBy == o.GradedBy
}

// Answer is written once per (attempt, question) and never modified.
// A later Grade overrides its correctness and points without touching the row.
type Answer struct {
	AttemptID    string           `json:"attempt_id"`
	QuestionID   string           `json:"question_id"`
	Seq          int              `json:"seq"`
	Response     grading.Response `json:"-"`
	IsCorrect    bool             `json:"is_correct"`
	PointsEarned int              `json:"points_earned"`
	NeedsManual  bool             `json:"needs_manual"`
	Expired      bool             `json:"expired"`
	TimeTakenSec int              `json:"time_taken_sec"`
	AnsweredAt   time.Time        `json:"answered_at"`
	Grade        *Grade           `json:"grade,omitempty"`
}

func (a Answer) EffectivePoints() int {
	if a.Grade != nil {
		return a.Grade.Points
	}
	return a.PointsEarned
}

func (a Answer) EffectiveCorrect() bool {
	if a.Grade != nil {
		return a.Grade.IsCorrect
	}
	return a.IsCorrect
}

// PendingManual reports whether the answer still waits for a grader.
func (a Answer) PendingManual() bool { return a.NeedsManual && !a.Expired && a.Grade == nil }

// Filter narrows ListAttempts. Zero fields match everything.
type Filter struct {
	QuizID    string
	SubjectID string
	Status    Status
	Limit     int
	Offset    int
}

// PublicChoice is a choice as shown to the subject, without correctness.
type PublicChoice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type PublicQuestion struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Text         string         `json:"text"`
	Points       int            `json:"points"`
	TimeLimitSec int            `json:"time_limit_sec"`
	Choices      []PublicChoice `json:"choices,omitempty"`
	MatchKeys    []string       `json:"match_keys,omitempty"` // matching questions: the targets to pair with
}

// Current is the subject's view of where an attempt stands.
type Current struct {
	AttemptID            string          `json:"attempt_id"`
	Index                int             `json:"index"`
	Total                int             `json:"total"`
	CompletionDue        bool            `json:"completion_due"`
	Question             *PublicQuestion `json:"question,omitempty"`
	QuestionRemainingSec int             `json:"question_remaining_sec"`
	AttemptRemainingSec  int             `json:"attempt_remaining_sec,omitempty"`
	HasAttemptLimit      bool            `json:"has_attempt_limit"`
	Expiry               string          `json:"expiry"`
}

// Progress is returned after an answer is recorded.
type Progress struct {
	Attempt  Attempt         `json:"attempt"`
	Outcome  grading.Outcome `json:"-"`
	Total    int             `json:"total"`
	Finished bool            `json:"finished"`
}

// ResultView is a scored attempt with its answers.
type ResultView struct {
	Attempt       Attempt  `json:"attempt"`
	Earned        int      `json:"earned"`
	TotalPoints   int      `json:"total_points"`
	PendingManual int      `json:"pending_manual"`
	Answers       []Answer `json:"answers"`
}
