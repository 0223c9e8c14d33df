package quiz

import (
	"context"
	"database/sql"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/fault"
)

// SQLStore reads definitions from the quizzes, questions and choices tables.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetQuiz(ctx context.Context, quizID string) (Quiz, error) {
	var qz Quiz
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, is_placement_test, pass_threshold, time_limit_sec, created_at
		   FROM quizzes WHERE id=$1`, quizID).
		Scan(&qz.ID, &qz.Title, &qz.IsPlacementTest, &qz.PassThreshold, &qz.TimeLimitSec, &qz.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, fault.Dependency(err, "get quiz")
	}
	return qz, nil
}

func (s *SQLStore) GetQuestions(ctx context.Context, quizID string) ([]Question, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quiz_id, type, text, points, time_limit_sec, ord, difficulty
		   FROM questions WHERE quiz_id=$1 ORDER BY ord, id`, quizID)
	if err != nil {
		return nil, fault.Dependency(err, "list questions")
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		var typ, diff string
		if err := rows.Scan(&q.ID, &q.QuizID, &typ, &q.Text, &q.Points, &q.TimeLimitSec, &q.Order, &diff); err != nil {
			return nil, fault.Dependency(err, "scan question")
		}
		q.Type, q.Difficulty = QuestionType(typ), Difficulty(diff)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Dependency(err, "list questions")
	}
	return out, nil
}

func (s *SQLStore) GetChoices(ctx context.Context, questionID string) ([]Choice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, is_correct, match_key FROM choices WHERE question_id=$1 ORDER BY ord, id`, questionID)
	if err != nil {
		return nil, fault.Dependency(err, "list choices")
	}
	defer rows.Close()
	var out []Choice
	for rows.Next() {
		var c Choice
		if err := rows.Scan(&c.ID, &c.Text, &c.IsCorrect, &c.MatchKey); err != nil {
			return nil, fault.Dependency(err, "scan choice")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Dependency(err, "list choices")
	}
	return out, nil
}

// Put upserts a quiz and replaces its questions and choices in one transaction.
// Attempts reference questions by id only, so replacing rows never orphans answers.
func (s *SQLStore) Put(ctx context.Context, d Definition) (err error) {
	if d.Quiz.ID == "" {
		return errors.Wrap(ErrInvalidDefinition, "quiz id required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Dependency(err, "begin")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = multierror.Append(err, rbErr)
			}
		}
	}()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO quizzes (id, title, is_placement_test, pass_threshold, time_limit_sec, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, is_placement_test=EXCLUDED.is_placement_test,
		   pass_threshold=EXCLUDED.pass_threshold, time_limit_sec=EXCLUDED.time_limit_sec`,
		d.Quiz.ID, d.Quiz.Title, d.Quiz.IsPlacementTest, d.Quiz.PassThreshold, d.Quiz.TimeLimitSec, time.Now().Unix()); err != nil {
		return fault.Dependency(err, "upsert quiz")
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM choices WHERE question_id IN (SELECT id FROM questions WHERE quiz_id=$1)`, d.Quiz.ID); err != nil {
		return fault.Dependency(err, "clear choices")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id=$1`, d.Quiz.ID); err != nil {
		return fault.Dependency(err, "clear questions")
	}
	for i, q := range d.Questions {
		ord := q.Order
		if ord == 0 {
			ord = i + 1
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO questions (id, quiz_id, type, text, points, time_limit_sec, ord, difficulty)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			q.ID, d.Quiz.ID, string(q.Type), q.Text, q.Points, q.TimeLimitSec, ord, string(q.Difficulty)); err != nil {
			return fault.Dependency(err, "insert question "+q.ID)
		}
		for j, c := range q.Choices {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO choices (id, question_id, ord, text, is_correct, match_key)
				 VALUES ($1,$2,$3,$4,$5,$6)`,
				c.ID, q.ID, j+1, c.Text, c.IsCorrect, c.MatchKey); err != nil {
				return fault.Dependency(err, "insert choice "+c.ID)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fault.Dependency(err, "commit")
	}
	return nil
}
