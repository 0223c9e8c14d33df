package http

import (
	"net/http"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// answerBody is an answer with its response in wire form.
type answerBody struct {
	QuestionID      string           `json:"question_id"`
	Seq             int              `json:"seq"`
	Response        grading.Envelope `json:"response"`
	IsCorrect       bool             `json:"is_correct"`
	PointsEarned    int              `json:"points_earned"`
	NeedsManual     bool             `json:"needs_manual"`
	Expired         bool             `json:"expired"`
	TimeTakenSec    int              `json:"time_taken_sec"`
	AnsweredAt      time.Time        `json:"answered_at"`
	Grade           *attempt.Grade   `json:"grade,omitempty"`
	EffectivePoints int              `json:"effective_points"`
}

func newAnswerBody(a attempt.Answer) answerBody {
	return answerBody{
		QuestionID:      a.QuestionID,
		Seq:             a.Seq,
		Response:        grading.EnvelopeOf(a.Response),
		IsCorrect:       a.EffectiveCorrect(),
		PointsEarned:    a.PointsEarned,
		NeedsManual:     a.NeedsManual,
		Expired:         a.Expired,
		TimeTakenSec:    a.TimeTakenSec,
		AnsweredAt:      a.AnsweredAt,
		Grade:           a.Grade,
		EffectivePoints: a.EffectivePoints(),
	}
}

type resultBody struct {
	Attempt       attempt.Attempt `json:"attempt"`
	Earned        int             `json:"earned"`
	TotalPoints   int             `json:"total_points"`
	PendingManual int             `json:"pending_manual"`
	Answers       []answerBody    `json:"answers"`
}

func newResultBody(v attempt.ResultView) resultBody {
	out := resultBody{
		Attempt:       v.Attempt,
		Earned:        v.Earned,
		TotalPoints:   v.TotalPoints,
		PendingManual: v.PendingManual,
		Answers:       make([]answerBody, 0, len(v.Answers)),
	}
	for _, a := range v.Answers {
		out.Answers = append(out.Answers, newAnswerBody(a))
	}
	return out
}

// GET /attempts/{attemptID}/pending-grading
func PendingGradingHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng, rbac.PermGrade)
		if !ok {
			return
		}
		items, err := eng.PendingGrading(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]answerBody, 0, len(items))
		for _, it := range items {
			out = append(out, newAnswerBody(it))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type gradeRequest struct {
	QuestionID string `json:"question_id"`
	IsCorrect  bool   `json:"is_correct"`
	Points     int    `json:"points"`
	Feedback   string `json:"feedback,omitempty"`
}

// POST /attempts/{attemptID}/grades
func ApplyGradeHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng, rbac.PermGrade)
		if !ok {
			return
		}
		var req gradeRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "bad json: "+err.Error())
			return
		}
		if req.QuestionID == "" {
			badRequest(w, "question_id required")
			return
		}
		ans, err := eng.ApplyManualGrade(r.Context(), a.ID, req.QuestionID, attempt.GradeInput{
			IsCorrect: req.IsCorrect,
			Points:    req.Points,
			Feedback:  req.Feedback,
			GradedBy:  auth.SubjectFromContext(r.Context()),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAnswerBody(ans))
	}
}

// POST /attempts/{attemptID}/recompute
func RecomputeHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng, rbac.PermGrade)
		if !ok {
			return
		}
		v, err := eng.Recompute(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newResultBody(v))
	}
}
