package attempt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mind-engage/mindengage-quiz/internal/fault"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
)

// SQLStore keeps attempts in SQLite or Postgres. Queries use $n placeholders, which both drivers accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const attemptCols = `id, quiz_id, subject_id, status, created_at, completed_at, score, result, cursor_pos, question_started_at, version`

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (`+attemptCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.QuizID, a.SubjectID, string(a.Status), toMillis(a.CreatedAt), nullMillis(a.CompletedAt),
		a.Score, string(a.Result), a.Cursor, toMillis(a.QuestionStartedAt), a.Version)
	if isUniqueViolation(err) {
		return ErrDuplicateAttempt
	}
	return fault.Dependency(err, "insert attempt")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var (
		a                 Attempt
		status, result    string
		created, qStarted int64
		completed         sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.QuizID, &a.SubjectID, &status, &created, &completed,
		&a.Score, &result, &a.Cursor, &qStarted, &a.Version); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.Result = scoring.Result(result)
	a.CreatedAt = fromMillis(created)
	a.QuestionStartedAt = fromMillis(qStarted)
	if completed.Valid {
		t := fromMillis(completed.Int64)
		a.CompletedAt = &t
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.getAttempt(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) getAttempt(ctx context.Context, q querier, id string) (Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fault.Dependency(err, "get attempt")
	}
	return a, nil
}

func (s *SQLStore) FindAttempt(ctx context.Context, subjectID, quizID string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE subject_id=$1 AND quiz_id=$2`, subjectID, quizID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fault.Dependency(err, "find attempt")
	}
	return a, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	querier
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt) error {
	return s.updateAttempt(ctx, s.db, a)
}

func (s *SQLStore) updateAttempt(ctx context.Context, x execer, a Attempt) error {
	res, err := x.ExecContext(ctx,
		`UPDATE attempts SET status=$1, completed_at=$2, score=$3, result=$4, cursor_pos=$5,
		   question_started_at=$6, version=version+1
		 WHERE id=$7 AND version=$8`,
		string(a.Status), nullMillis(a.CompletedAt), a.Score, string(a.Result), a.Cursor,
		toMillis(a.QuestionStartedAt), a.ID, a.Version)
	if err != nil {
		return fault.Dependency(err, "update attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Dependency(err, "update attempt")
	}
	if n == 1 {
		return nil
	}
	if _, err := s.getAttempt(ctx, x, a.ID); err != nil {
		return err
	}
	return ErrVersionConflict
}

func (s *SQLStore) AppendAnswer(ctx context.Context, ans Answer) error {
	return s.appendAnswer(ctx, s.db, ans)
}

func (s *SQLStore) appendAnswer(ctx context.Context, x execer, ans Answer) error {
	kind, payload, err := grading.Encode(ans.Response)
	if err != nil {
		return err
	}
	_, err = x.ExecContext(ctx,
		`INSERT INTO answers (attempt_id, question_id, seq, kind, payload, is_correct, points_earned,
		   needs_manual, expired, time_taken_sec, answered_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ans.AttemptID, ans.QuestionID, ans.Seq, string(kind), string(payload), ans.IsCorrect, ans.PointsEarned,
		ans.NeedsManual, ans.Expired, ans.TimeTakenSec, toMillis(ans.AnsweredAt))
	if isUniqueViolation(err) {
		return ErrDuplicateAnswer
	}
	if isForeignKeyViolation(err) {
		return ErrAttemptNotFound
	}
	return fault.Dependency(err, "insert answer")
}

func (s *SQLStore) RecordAnswer(ctx context.Context, a Attempt, ans Answer) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Dependency(err, "begin")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = multierror.Append(err, fault.Dependency(rbErr, "rollback"))
			}
		}
	}()
	if err = s.updateAttempt(ctx, tx, a); err != nil {
		return err
	}
	if err = s.appendAnswer(ctx, tx, ans); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fault.Dependency(err, "commit")
	}
	return nil
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.attempt_id, a.question_id, a.seq, a.kind, a.payload, a.is_correct, a.points_earned,
		        a.needs_manual, a.expired, a.time_taken_sec, a.answered_at,
		        g.is_correct, g.points, g.feedback, g.graded_by, g.graded_at
		   FROM answers a
		   LEFT JOIN answer_grades g ON g.attempt_id=a.attempt_id AND g.question_id=a.question_id
		  WHERE a.attempt_id=$1
		  ORDER BY a.seq`, attemptID)
	if err != nil {
		return nil, fault.Dependency(err, "list answers")
	}
	defer rows.Close()

	var out []Answer
	for rows.Next() {
		var (
			ans                  Answer
			kind, payload        string
			answered             int64
			gCorrect             sql.NullBool
			gPoints, gAt         sql.NullInt64
			gFeedback, gGradedBy sql.NullString
		)
		if err := rows.Scan(&ans.AttemptID, &ans.QuestionID, &ans.Seq, &kind, &payload, &ans.IsCorrect,
			&ans.PointsEarned, &ans.NeedsManual, &ans.Expired, &ans.TimeTakenSec, &answered,
			&gCorrect, &gPoints, &gFeedback, &gGradedBy, &gAt); err != nil {
			return nil, fault.Dependency(err, "scan answer")
		}
		r, err := grading.Decode(grading.Kind(kind), []byte(payload))
		if err != nil {
			return nil, fault.Dependency(err, "decode answer "+ans.QuestionID)
		}
		ans.Response = r
		ans.AnsweredAt = fromMillis(answered)
		if gPoints.Valid {
			ans.Grade = &Grade{
				IsCorrect: gCorrect.Bool,
				Points:    int(gPoints.Int64),
				Feedback:  gFeedback.String,
				GradedBy:  gGradedBy.String,
				GradedAt:  fromMillis(gAt.Int64),
			}
		}
		out = append(out, ans)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Dependency(err, "list answers")
	}
	return out, nil
}

func (s *SQLStore) PutGrade(ctx context.Context, attemptID, questionID string, g Grade) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM answers WHERE attempt_id=$1 AND question_id=$2`, attemptID, questionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAnswerNotFound
	}
	if err != nil {
		return fault.Dependency(err, "find answer")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answer_grades (attempt_id, question_id, is_correct, points, feedback, graded_by, graded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		   is_correct=EXCLUDED.is_correct, points=EXCLUDED.points, feedback=EXCLUDED.feedback,
		   graded_by=EXCLUDED.graded_by, graded_at=EXCLUDED.graded_at`,
		attemptID, questionID, g.IsCorrect, g.Points, g.Feedback, g.GradedBy, toMillis(g.GradedAt))
	return fault.Dependency(err, "upsert grade")
}

func (s *SQLStore) ListAttempts(ctx context.Context, f Filter) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.QuizID != "" {
		add("quiz_id=$%d", f.QuizID)
	}
	if f.SubjectID != "" {
		add("subject_id=$%d", f.SubjectID)
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	q := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	q += fmt.Sprintf(` LIMIT $%d`, len(args))
	args = append(args, f.Offset)
	q += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fault.Dependency(err, "list attempts")
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fault.Dependency(err, "scan attempt")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Dependency(err, "list attempts")
	}
	return out, nil
}

// ---- helpers ----

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "FOREIGN KEY constraint failed")
		}
	}
	return false
}
