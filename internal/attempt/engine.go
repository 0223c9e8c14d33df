package attempt

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/fault"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/lock"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
	"github.com/mind-engage/mindengage-quiz/internal/timer"
)

// Engine drives attempts through in_progress -> completed | timed_out.
// Every mutation of an attempt runs under that attempt's lock and is written
// with an optimistic version check, so racing calls have exactly one winner.
type Engine struct {
	defs    quiz.Definitions
	store   Store
	blobs   storage.BlobStore
	locks   lock.Locker
	clock   timer.Clock
	events  events.Publisher
	metrics metrics.Recorder
	policy  scoring.Policy
	grace   time.Duration
	newID   func() string
}

type Option func(*Engine)

func WithBlobStore(b storage.BlobStore) Option { return func(e *Engine) { e.blobs = b } }
func WithLocker(l lock.Locker) Option { return func(e *Engine) { e.locks = l } }
func WithClock(c timer.Clock) Option { return func(e *Engine) { e.clock = c } }
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.events = p } }
func WithMetrics(m metrics.Recorder) Option { return func(e *Engine) { e.metrics = m } }
func WithPolicy(p scoring.Policy) Option { return func(e *Engine) { e.policy = p } }
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

// WithQuestionGrace lets a submission arrive up to d after the question deadline.
func WithQuestionGrace(d time.Duration) Option { return func(e *Engine) { e.grace = d } }

func NewEngine(defs quiz.Definitions, store Store, opts ...Option) *Engine {
	e := &Engine{
		defs:    defs,
		store:   store,
		locks:   lock.NewLocal(),
		clock:   timer.SystemClock{},
		events:  events.Nop{},
		metrics: metrics.Nop{},
		policy:  scoring.DefaultPolicy(),
		grace:   2 * time.Second,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// StartAttempt opens an attempt for subjectID at quizID.
// If one is already in progress it is returned together with ErrAttemptInProgress,
// so callers can resume it.
func (e *Engine) StartAttempt(ctx context.Context, subjectID, quizID string) (a Attempt, err error) {
	defer e.observe("start", time.Now(), &err)
	if subjectID == "" || quizID == "" {
		return Attempt{}, errors.Wrap(ErrInvalidArgument, "subject and quiz required")
	}
	def, err := quiz.Load(ctx, e.defs, quizID)
	if err != nil {
		return Attempt{}, err
	}

	release, err := e.locks.Lock(ctx, "start:"+subjectID+":"+quizID)
	if err != nil {
		return Attempt{}, fault.Dependency(err, "lock start")
	}
	a, err = e.startLocked(ctx, subjectID, def)
	release()
	if err != nil {
		if errors.Is(err, ErrAttemptInProgress) {
			e.metrics.AttemptStarted(true)
		}
		return a, err
	}
	e.metrics.AttemptStarted(false)
	e.publish(ctx, events.Event{Type: events.AttemptStarted, Key: a.ID, At: a.CreatedAt, Data: map[string]any{
		"quiz_id": a.QuizID, "subject_id": a.SubjectID, "questions": len(def.Questions),
	}})
	return a, nil
}

func (e *Engine) startLocked(ctx context.Context, subjectID string, def *quiz.Definition) (Attempt, error) {
	if prev, err := e.existing(ctx, subjectID, def.Quiz.ID); err != nil || prev != nil {
		if prev != nil {
			return *prev, err
		}
		return Attempt{}, err
	}
	now := e.clock.Now()
	a := Attempt{
		ID:                e.newID(),
		QuizID:            def.Quiz.ID,
		SubjectID:         subjectID,
		Status:            StatusInProgress,
		CreatedAt:         now,
		QuestionStartedAt: now,
		Version:           1,
	}
	err := e.store.CreateAttempt(ctx, a)
	if errors.Is(err, ErrDuplicateAttempt) {
		// another replica won the race
		prev, err := e.existing(ctx, subjectID, def.Quiz.ID)
		if prev != nil {
			return *prev, err
		}
		return Attempt{}, err
	}
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// existing returns the subject's attempt at the quiz, if any, with the error StartAttempt should report.
func (e *Engine) existing(ctx context.Context, subjectID, quizID string) (*Attempt, error) {
	prev, err := e.store.FindAttempt(ctx, subjectID, quizID)
	if errors.Is(err, ErrAttemptNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if prev.Status.Terminal() {
		return &prev, ErrAlreadyCompleted
	}
	return &prev, ErrAttemptInProgress
}

// CurrentQuestion reports the question at the cursor and both clocks. It takes no lock.
func (e *Engine) CurrentQuestion(ctx context.Context, attemptID string) (Current, error) {
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return Current{}, err
	}
	if a.Status.Terminal() {
		return Current{}, ErrAttemptAlreadyTerminal
	}
	cur := Current{AttemptID: a.ID, Index: a.Cursor, Total: len(def.Questions)}
	if a.Cursor >= len(def.Questions) {
		cur.CompletionDue = true
		cur.Expiry = timer.None.String()
		return cur, nil
	}
	q := def.Questions[a.Cursor]
	st := timer.Check(budget(def, a, q), e.clock.Now(), 0)
	cur.Question = publicQuestion(q)
	cur.QuestionRemainingSec = ceilSeconds(st.QuestionRemaining)
	cur.HasAttemptLimit = st.HasAttemptLimit
	if st.HasAttemptLimit {
		cur.AttemptRemainingSec = ceilSeconds(st.AttemptRemaining)
	}
	cur.Expiry = st.Expiry.String()
	return cur, nil
}

// SubmitAnswer evaluates r for the current question, records it and advances.
// Answering the last question completes the attempt in the same write.
func (e *Engine) SubmitAnswer(ctx context.Context, attemptID, questionID string, r grading.Response, timeTakenSec int) (p Progress, err error) {
	defer e.observe("submit", time.Now(), &err)
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return Progress{}, err
	}
	var evs []events.Event
	err = e.mutate(ctx, a.ID, func() error {
		a, err := e.store.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		q, err := currentQuestion(def, a, questionID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		switch timer.Check(budget(def, a, q), now, e.grace).Expiry {
		case timer.AttemptExpired:
			return ErrAttemptExpired
		case timer.QuestionExpired:
			return ErrQuestionExpired
		}
		out, err := grading.Evaluate(q, r)
		if err != nil {
			return err
		}
		ans := Answer{
			AttemptID:    a.ID,
			QuestionID:   q.ID,
			Seq:          a.Cursor,
			Response:     r,
			IsCorrect:    out.IsCorrect,
			PointsEarned: out.PointsEarned,
			NeedsManual:  out.NeedsManual,
			TimeTakenSec: clampTimeTaken(timeTakenSec, a.QuestionStartedAt, now),
			AnsweredAt:   now,
		}
		p, evs, err = e.advance(ctx, def, a, ans, now)
		p.Outcome = out
		return err
	})
	if err != nil {
		return Progress{}, err
	}
	e.metrics.AnswerRecorded("submit", p.Outcome.IsCorrect)
	e.publish(ctx, evs...)
	return p, nil
}

// SubmitFile stores an upload and submits a reference to it. The blob is written
// before the attempt lock is taken.
func (e *Engine) SubmitFile(ctx context.Context, attemptID, questionID string, data []byte, contentType string, durationSec, timeTakenSec int) (Progress, error) {
	if e.blobs == nil {
		return Progress{}, fault.Dependency(errors.New("no blob store configured"), "submit file")
	}
	if len(data) == 0 {
		return Progress{}, errors.Wrap(ErrMalformedResponse, "empty upload")
	}
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return Progress{}, err
	}
	if a.Status.Terminal() {
		return Progress{}, ErrAttemptAlreadyTerminal
	}
	q, err := currentQuestion(def, a, questionID)
	if err != nil {
		return Progress{}, err
	}
	if q.Type.Family() != quiz.FamilyUpload {
		return Progress{}, errors.Wrapf(ErrMalformedResponse, "question %s does not accept uploads", q.ID)
	}
	ref, err := e.blobs.Put(ctx, storage.AnswerKey(a.ID, q.ID, contentType), data, contentType)
	if err != nil {
		return Progress{}, fault.Dependency(err, "store upload")
	}
	return e.SubmitAnswer(ctx, attemptID, questionID,
		grading.Upload{Ref: ref, ContentType: contentType, DurationSec: durationSec}, timeTakenSec)
}

// ExpireCurrentQuestion records a zero-credit answer for a question whose time ran out.
func (e *Engine) ExpireCurrentQuestion(ctx context.Context, attemptID string) (p Progress, err error) {
	defer e.observe("expire_question", time.Now(), &err)
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return Progress{}, err
	}
	var evs []events.Event
	err = e.mutate(ctx, a.ID, func() error {
		a, err := e.store.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return ErrAttemptAlreadyTerminal
		}
		if a.Cursor >= len(def.Questions) {
			return ErrQuestionMismatch
		}
		q := def.Questions[a.Cursor]
		now := e.clock.Now()
		switch timer.Check(budget(def, a, q), now, 0).Expiry {
		case timer.AttemptExpired:
			return ErrAttemptExpired
		case timer.None:
			return ErrQuestionNotExpired
		}
		ans := Answer{
			AttemptID:    a.ID,
			QuestionID:   q.ID,
			Seq:          a.Cursor,
			Response:     grading.NoResponse{},
			Expired:      true,
			TimeTakenSec: q.TimeLimitSec,
			AnsweredAt:   now,
		}
		p, evs, err = e.advance(ctx, def, a, ans, now)
		return err
	})
	if err != nil {
		return Progress{}, err
	}
	e.metrics.AnswerRecorded("expiry", false)
	e.publish(ctx, evs...)
	return p, nil
}

// ExpireAttempt finalizes an attempt whose whole-attempt budget ran out as timed_out,
// scoring only what was answered.
func (e *Engine) ExpireAttempt(ctx context.Context, attemptID string) (v ResultView, err error) {
	defer e.observe("expire_attempt", time.Now(), &err)
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return ResultView{}, err
	}
	var evs []events.Event
	err = e.mutate(ctx, a.ID, func() error {
		a, err := e.store.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return ErrAttemptAlreadyTerminal
		}
		now := e.clock.Now()
		if def.Quiz.TimeLimitSec <= 0 || timer.Remaining(timer.Seconds(def.Quiz.TimeLimitSec), a.CreatedAt, now) > 0 {
			return ErrAttemptNotExpired
		}
		v, evs, err = e.finalize(ctx, def, a, StatusTimedOut, now)
		return err
	})
	if err != nil {
		return ResultView{}, err
	}
	e.publish(ctx, evs...)
	return v, nil
}

// Finalize completes an attempt whose questions are all answered. On a finished
// attempt it returns the stored result unchanged.
func (e *Engine) Finalize(ctx context.Context, attemptID string) (v ResultView, err error) {
	defer e.observe("finalize", time.Now(), &err)
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return ResultView{}, err
	}
	var evs []events.Event
	err = e.mutate(ctx, a.ID, func() error {
		a, err := e.store.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			v, err = e.view(ctx, def, a)
			return err
		}
		if a.Cursor < len(def.Questions) {
			return ErrQuestionsRemaining
		}
		v, evs, err = e.finalize(ctx, def, a, StatusCompleted, e.clock.Now())
		return err
	})
	if err != nil {
		return ResultView{}, err
	}
	e.publish(ctx, evs...)
	return v, nil
}

// GradeInput is a grader's decision for one answer.
type GradeInput struct {
	IsCorrect bool
	Points    int
	Feedback  string
	GradedBy  string
}

// ApplyManualGrade records a human grade for a text or upload answer. It does not
// touch the attempt's status or score; call Recompute to re-score. Applying the
// same grade again changes nothing.
func (e *Engine) ApplyManualGrade(ctx context.Context, attemptID, questionID string, in GradeInput) (ans Answer, err error) {
	defer e.observe("grade", time.Now(), &err)
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return Answer{}, err
	}
	q, _, ok := def.Question(questionID)
	if !ok {
		return Answer{}, errors.Wrapf(ErrAnswerNotFound, "question %s not in quiz %s", questionID, def.Quiz.ID)
	}
	if !q.Type.Family().Manual() {
		return Answer{}, errors.Wrapf(ErrNotManuallyGraded, "question %s is %s", q.ID, q.Type)
	}
	if in.Points < 0 || in.Points > q.Points {
		return Answer{}, errors.Wrapf(ErrInvalidGrade, "points %d outside [0,%d]", in.Points, q.Points)
	}
	changed := false
	err = e.mutate(ctx, a.ID, func() error {
		answers, err := e.store.ListAnswers(ctx, attemptID)
		if err != nil {
			return err
		}
		i := indexAnswer(answers, questionID)
		if i < 0 {
			return ErrAnswerNotFound
		}
		ans = answers[i]
		if ans.Expired {
			return errors.Wrap(ErrNotManuallyGraded, "expired answer has nothing to grade")
		}
		g := Grade{IsCorrect: in.IsCorrect, Points: in.Points, Feedback: in.Feedback, GradedBy: in.GradedBy, GradedAt: e.clock.Now()}
		if ans.Grade != nil && ans.Grade.same(g) {
			return nil
		}
		if err := e.store.PutGrade(ctx, attemptID, questionID, g); err != nil {
			return err
		}
		ans.Grade = &g
		changed = true
		return nil
	})
	if err != nil {
		return Answer{}, err
	}
	if changed {
		e.publish(ctx, events.Event{Type: events.GradeApplied, Key: attemptID, At: ans.Grade.GradedAt, Data: map[string]any{
			"question_id": questionID, "points": ans.Grade.Points, "is_correct": ans.Grade.IsCorrect,
		}})
	}
	return ans, nil
}

// Recompute re-scores a finished attempt from its answers and current grades.
// Status and completion time are kept.
func (e *Engine) Recompute(ctx context.Context, attemptID string) (v ResultView, err error) {
	defer e.observe("recompute", time.Now(), &err)
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return ResultView{}, err
	}
	var evs []events.Event
	err = e.mutate(ctx, a.ID, func() error {
		a, err := e.store.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if !a.Status.Terminal() {
			return ErrAttemptNotTerminal
		}
		answers, err := e.store.ListAnswers(ctx, attemptID)
		if err != nil {
			return err
		}
		score, result := e.score(def, answers)
		if score != a.Score || result != a.Result {
			prevScore := a.Score
			a.Score, a.Result = score, result
			if err := e.store.UpdateAttempt(ctx, a); err != nil {
				return conflict(err)
			}
			a.Version++
			evs = append(evs, events.Event{Type: events.AttemptRescored, Key: a.ID, At: e.clock.Now(), Data: map[string]any{
				"previous_score": prevScore, "score": a.Score, "result": a.Result,
			}})
		}
		v = buildView(def, a, answers)
		return nil
	})
	if err != nil {
		return ResultView{}, err
	}
	e.publish(ctx, evs...)
	return v, nil
}

// GetResult returns the attempt with its answers and effective points.
func (e *Engine) GetResult(ctx context.Context, attemptID string) (ResultView, error) {
	a, def, err := e.load(ctx, attemptID)
	if err != nil {
		return ResultView{}, err
	}
	return e.view(ctx, def, a)
}

func (e *Engine) GetAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	return e.store.GetAttempt(ctx, attemptID)
}

func (e *Engine) ListAttempts(ctx context.Context, f Filter) ([]Attempt, error) {
	return e.store.ListAttempts(ctx, f)
}

// PendingGrading lists answers of the attempt that still wait for a human grade.
func (e *Engine) PendingGrading(ctx context.Context, attemptID string) ([]Answer, error) {
	answers, err := e.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	var out []Answer
	for _, ans := range answers {
		if ans.PendingManual() {
			out = append(out, ans)
		}
	}
	return out, nil
}

// ---- internals ----

func (e *Engine) load(ctx context.Context, attemptID string) (Attempt, *quiz.Definition, error) {
	if attemptID == "" {
		return Attempt{}, nil, errors.Wrap(ErrInvalidArgument, "attempt id required")
	}
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	def, err := quiz.Load(ctx, e.defs, a.QuizID)
	if err != nil {
		return Attempt{}, nil, err
	}
	return a, def, nil
}

// mutate runs fn under the attempt lock. Events are published by the caller after release.
func (e *Engine) mutate(ctx context.Context, attemptID string, fn func() error) error {
	release, err := e.locks.Lock(ctx, attemptID)
	if err != nil {
		return fault.Dependency(err, "lock attempt")
	}
	defer release()
	return fn()
}

// advance persists ans and moves the cursor, completing the attempt after the last question.
func (e *Engine) advance(ctx context.Context, def *quiz.Definition, a Attempt, ans Answer, now time.Time) (Progress, []events.Event, error) {
	next := a
	next.Cursor++
	next.QuestionStartedAt = now
	evs := []events.Event{{Type: events.AnswerRecorded, Key: a.ID, At: now, Data: map[string]any{
		"question_id": ans.QuestionID, "seq": ans.Seq, "expired": ans.Expired, "needs_manual": ans.NeedsManual,
	}}}
	finished := next.Cursor >= len(def.Questions)
	if finished {
		answers, err := e.store.ListAnswers(ctx, a.ID)
		if err != nil {
			return Progress{}, nil, err
		}
		answers = append(answers, ans)
		next.Status = StatusCompleted
		next.CompletedAt = &now
		next.Score, next.Result = e.score(def, answers)
	}
	if err := e.store.RecordAnswer(ctx, next, ans); err != nil {
		return Progress{}, nil, conflict(err)
	}
	next.Version++
	if finished {
		e.metrics.AttemptFinalized(string(next.Status), string(next.Result))
		evs = append(evs, finalizedEvent(def, next))
	}
	return Progress{Attempt: next, Total: len(def.Questions), Finished: finished}, evs, nil
}

func (e *Engine) finalize(ctx context.Context, def *quiz.Definition, a Attempt, status Status, now time.Time) (ResultView, []events.Event, error) {
	answers, err := e.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return ResultView{}, nil, err
	}
	a.Status = status
	a.CompletedAt = &now
	a.Score, a.Result = e.score(def, answers)
	if err := e.store.UpdateAttempt(ctx, a); err != nil {
		return ResultView{}, nil, conflict(err)
	}
	a.Version++
	e.metrics.AttemptFinalized(string(a.Status), string(a.Result))
	return buildView(def, a, answers), []events.Event{finalizedEvent(def, a)}, nil
}

// conflict turns a lost optimistic write into the error the losing caller should see.
func conflict(err error) error {
	if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrDuplicateAnswer) {
		return err
	}
	// another writer got there first and moved the cursor
	return errors.Wrap(ErrQuestionMismatch, err.Error())
}

func (e *Engine) score(def *quiz.Definition, answers []Answer) (float64, scoring.Result) {
	graded := make([]scoring.Graded, 0, len(answers))
	for _, ans := range answers {
		g := scoring.Graded{Points: ans.EffectivePoints(), Correct: ans.EffectiveCorrect()}
		if q, _, ok := def.Question(ans.QuestionID); ok {
			g.Difficulty = q.Difficulty
		}
		graded = append(graded, g)
	}
	s := scoring.Summarize(def.TotalPoints(), graded)
	return s.Score, e.policy.Classify(def.Quiz, s)
}

func (e *Engine) view(ctx context.Context, def *quiz.Definition, a Attempt) (ResultView, error) {
	answers, err := e.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return ResultView{}, err
	}
	return buildView(def, a, answers), nil
}

func buildView(def *quiz.Definition, a Attempt, answers []Answer) ResultView {
	v := ResultView{Attempt: a, TotalPoints: def.TotalPoints(), Answers: answers}
	for _, ans := range answers {
		v.Earned += ans.EffectivePoints()
		if ans.PendingManual() {
			v.PendingManual++
		}
	}
	return v
}

func (e *Engine) publish(ctx context.Context, evs ...events.Event) {
	for _, ev := range evs {
		if err := e.events.Publish(ctx, ev); err != nil {
			log.Printf("publish %s for %s: %v", ev.Type, ev.Key, err)
		}
	}
}

func (e *Engine) observe(op string, started time.Time, errp *error) {
	kind := ""
	if *errp != nil {
		kind = "internal"
		if k := fault.KindOf(*errp); k != nil {
			kind = k.Error()
		}
	}
	e.metrics.OperationDone(op, started, kind)
}

func finalizedEvent(def *quiz.Definition, a Attempt) events.Event {
	at := time.Time{}
	if a.CompletedAt != nil {
		at = *a.CompletedAt
	}
	return events.Event{Type: events.AttemptFinalized, Key: a.ID, At: at, Data: map[string]any{
		"quiz_id":           a.QuizID,
		"subject_id":        a.SubjectID,
		"status":            a.Status,
		"score":             a.Score,
		"result":            a.Result,
		"is_placement_test": def.Quiz.IsPlacementTest,
	}}
}

func currentQuestion(def *quiz.Definition, a Attempt, questionID string) (quiz.Question, error) {
	if a.Status.Terminal() {
		return quiz.Question{}, ErrAttemptAlreadyTerminal
	}
	if a.Cursor >= len(def.Questions) {
		return quiz.Question{}, errors.Wrapf(ErrQuestionMismatch, "no question left, got %s", questionID)
	}
	q := def.Questions[a.Cursor]
	if q.ID != questionID {
		return quiz.Question{}, errors.Wrapf(ErrQuestionMismatch, "current question is %s, got %s", q.ID, questionID)
	}
	return q, nil
}

func budget(def *quiz.Definition, a Attempt, q quiz.Question) timer.Budget {
	return timer.Budget{
		AttemptStarted:  a.CreatedAt,
		AttemptLimit:    timer.Seconds(def.Quiz.TimeLimitSec),
		QuestionStarted: a.QuestionStartedAt,
		QuestionLimit:   timer.Seconds(q.TimeLimitSec),
	}
}

// clampTimeTaken keeps the client's figure within what the server measured.
func clampTimeTaken(reported int, startedAt, now time.Time) int {
	measured := ceilSeconds(timer.Elapsed(startedAt, now))
	if reported <= 0 || reported > measured {
		return measured
	}
	return reported
}

func ceilSeconds(d time.Duration) int { return int(math.Ceil(d.Seconds())) }

func publicQuestion(q quiz.Question) *PublicQuestion {
	pq := &PublicQuestion{ID: q.ID, Type: string(q.Type), Text: q.Text, Points: q.Points, TimeLimitSec: q.TimeLimitSec}
	keys := map[string]struct{}{}
	for _, c := range q.Choices {
		pq.Choices = append(pq.Choices, PublicChoice{ID: c.ID, Text: c.Text})
		if c.MatchKey != "" {
			keys[c.MatchKey] = struct{}{}
		}
	}
	if q.Type.Family() == quiz.FamilyMatching {
		for k := range keys {
			pq.MatchKeys = append(pq.MatchKeys, k)
		}
		sort.Strings(pq.MatchKeys)
	}
	return pq
}

func indexAnswer(answers []Answer, questionID string) int {
	for i, ans := range answers {
		if ans.QuestionID == questionID {
			return i
		}
	}
	return -1
}
