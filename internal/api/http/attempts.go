package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Engine is the attempt engine as the HTTP layer uses it.
type Engine interface {
	StartAttempt(ctx context.Context, subjectID, quizID string) (attempt.Attempt, error)
	CurrentQuestion(ctx context.Context, attemptID string) (attempt.Current, error)
	SubmitAnswer(ctx context.Context, attemptID, questionID string, r grading.Response, timeTakenSec int) (attempt.Progress, error)
	SubmitFile(ctx context.Context, attemptID, questionID string, data []byte, contentType string, durationSec, timeTakenSec int) (attempt.Progress, error)
	ExpireCurrentQuestion(ctx context.Context, attemptID string) (attempt.Progress, error)
	ExpireAttempt(ctx context.Context, attemptID string) (attempt.ResultView, error)
	Finalize(ctx context.Context, attemptID string) (attempt.ResultView, error)
	ApplyManualGrade(ctx context.Context, attemptID, questionID string, in attempt.GradeInput) (attempt.Answer, error)
	Recompute(ctx context.Context, attemptID string) (attempt.ResultView, error)
	GetResult(ctx context.Context, attemptID string) (attempt.ResultView, error)
	GetAttempt(ctx context.Context, attemptID string) (attempt.Attempt, error)
	ListAttempts(ctx context.Context, f attempt.Filter) ([]attempt.Attempt, error)
	PendingGrading(ctx context.Context, attemptID string) ([]attempt.Answer, error)
}

const maxUpload = 32 << 20

// MountAttempts registers the attempt routes. r must already carry JWTMiddleware.
func MountAttempts(r chi.Router, eng Engine) {
	r.With(rbac.Require(rbac.PermTake)).Post("/attempts", StartAttemptHandler(eng))
	r.With(rbac.RequireAny(rbac.PermViewOwn, rbac.PermViewAll)).Get("/attempts", ListAttemptsHandler(eng))

	r.Route("/attempts/{attemptID}", func(ar chi.Router) {
		ar.Get("/", GetAttemptHandler(eng))
		ar.Get("/result", GetResultHandler(eng))

		ar.With(rbac.Require(rbac.PermTake)).Get("/current", CurrentQuestionHandler(eng))
		ar.With(rbac.Require(rbac.PermTake)).Post("/answers", SubmitAnswerHandler(eng))
		ar.With(rbac.Require(rbac.PermTake)).Post("/answers/upload", SubmitFileHandler(eng))
		ar.With(rbac.Require(rbac.PermTake)).Post("/finalize", FinalizeHandler(eng))
		ar.With(rbac.RequireAny(rbac.PermTake, rbac.PermExpire)).Post("/expire-question", ExpireQuestionHandler(eng))
		ar.With(rbac.RequireAny(rbac.PermTake, rbac.PermExpire)).Post("/expire", ExpireAttemptHandler(eng))

		ar.With(rbac.Require(rbac.PermGrade)).Get("/pending-grading", PendingGradingHandler(eng))
		ar.With(rbac.Require(rbac.PermGrade)).Post("/grades", ApplyGradeHandler(eng))
		ar.With(rbac.Require(rbac.PermGrade)).Post("/recompute", RecomputeHandler(eng))
	})
}

// loadAttempt fetches the attempt named in the URL and checks the caller may act on it:
// the owner always may; anyone else needs one of perms.
func loadAttempt(w http.ResponseWriter, r *http.Request, eng Engine, perms ...string) (attempt.Attempt, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "attemptID"))
	if id == "" {
		badRequest(w, "attemptID required")
		return attempt.Attempt{}, false
	}
	a, err := eng.GetAttempt(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return attempt.Attempt{}, false
	}
	sub := auth.SubjectFromContext(r.Context())
	role := rbac.RoleFromContext(r.Context())
	if sub != "" && sub == a.SubjectID {
		return a, true
	}
	if len(perms) > 0 && rbac.Default().Any(role, perms...) {
		return a, true
	}
	forbidden(w)
	return attempt.Attempt{}, false
}

type startResponse struct {
	Attempt attempt.Attempt `json:"attempt"`
	Resumed bool            `json:"resumed"`
}

// POST /attempts {"quiz_id": "..."}
func StartAttemptHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "bad json: "+err.Error())
			return
		}
		if req.QuizID == "" {
			badRequest(w, "quiz_id required")
			return
		}
		a, err := eng.StartAttempt(r.Context(), auth.SubjectFromContext(r.Context()), req.QuizID)
		switch {
		case errors.Is(err, attempt.ErrAttemptInProgress):
			writeJSON(w, http.StatusOK, startResponse{Attempt: a, Resumed: true})
		case err != nil:
			writeError(w, r, err)
		default:
			writeJSON(w, http.StatusCreated, startResponse{Attempt: a})
		}
	}
}

// GET /attempts?quiz_id=&subject_id=&status=&limit=&offset=
// Callers without attempt:view-all only see their own attempts.
func ListAttemptsHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := attempt.Filter{
			QuizID:    q.Get("quiz_id"),
			SubjectID: q.Get("subject_id"),
			Status:    attempt.Status(q.Get("status")),
		}
		var err error
		if f.Limit, err = intParam(q.Get("limit")); err != nil {
			badRequest(w, "bad limit")
			return
		}
		if f.Offset, err = intParam(q.Get("offset")); err != nil {
			badRequest(w, "bad offset")
			return
		}
		if !rbac.Default().Has(rbac.RoleFromContext(r.Context()), rbac.PermViewAll) {
			f.SubjectID = auth.SubjectFromContext(r.Context())
		}
		items, err := eng.ListAttempts(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if items == nil {
			items = []attempt.Attempt{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng, rbac.PermViewAll)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}/result
func GetResultHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng, rbac.PermViewAll)
		if !ok {
			return
		}
		v, err := eng.GetResult(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newResultBody(v))
	}
}

// GET /attempts/{attemptID}/current
func CurrentQuestionHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng)
		if !ok {
			return
		}
		cur, err := eng.CurrentQuestion(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cur)
	}
}

type submitRequest struct {
	QuestionID   string           `json:"question_id"`
	Response     grading.Envelope `json:"response"`
	TimeTakenSec int              `json:"time_taken_sec"`
}

// POST /attempts/{attemptID}/answers
func SubmitAnswerHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng)
		if !ok {
			return
		}
		var req submitRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "bad json: "+err.Error())
			return
		}
		if req.QuestionID == "" {
			badRequest(w, "question_id required")
			return
		}
		resp, err := req.Response.Response()
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := eng.SubmitAnswer(r.Context(), a.ID, req.QuestionID, resp, req.TimeTakenSec)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// POST /attempts/{attemptID}/answers/upload (multipart: question_id, file, duration_sec, time_taken_sec)
func SubmitFileHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			badRequest(w, "multipart form required")
			return
		}
		questionID := r.FormValue("question_id")
		if questionID == "" {
			badRequest(w, "question_id required")
			return
		}
		duration, err1 := intParam(r.FormValue("duration_sec"))
		taken, err2 := intParam(r.FormValue("time_taken_sec"))
		if err1 != nil || err2 != nil {
			badRequest(w, "bad duration_sec or time_taken_sec")
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "file required")
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			badRequest(w, "read file: "+err.Error())
			return
		}
		contentType := hdr.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		p, err := eng.SubmitFile(r.Context(), a.ID, questionID, data, contentType, duration, taken)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// POST /attempts/{attemptID}/expire-question
func ExpireQuestionHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng, rbac.PermExpire)
		if !ok {
			return
		}
		p, err := eng.ExpireCurrentQuestion(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// POST /attempts/{attemptID}/expire
func ExpireAttemptHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng, rbac.PermExpire)
		if !ok {
			return
		}
		v, err := eng.ExpireAttempt(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newResultBody(v))
	}
}

// POST /attempts/{attemptID}/finalize
func FinalizeHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadAttempt(w, r, eng)
		if !ok {
			return
		}
		v, err := eng.Finalize(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newResultBody(v))
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.Errorf("bad integer %q", s)
	}
	return n, nil
}
