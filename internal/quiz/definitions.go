// Package quiz holds quiz, question and choice definitions and the read-only
// boundary the engine loads them through.
package quiz

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/fault"
)

var (
	ErrQuizNotFound      = fault.New(fault.NotFound, "quiz not found")
	ErrEmptyQuiz         = fault.New(fault.InvalidInput, "quiz has no questions")
	ErrInvalidDefinition = fault.New(fault.InvalidInput, "invalid quiz definition")
)

// Definitions is the read-only quiz definition store.
type Definitions interface {
	GetQuiz(ctx context.Context, quizID string) (Quiz, error)
	// GetQuestions returns the quiz questions ordered by Order.
	GetQuestions(ctx context.Context, quizID string) ([]Question, error)
	GetChoices(ctx context.Context, questionID string) ([]Choice, error)
}

// Load assembles and validates the definition of quizID.
func Load(ctx context.Context, defs Definitions, quizID string) (*Definition, error) {
	qz, err := defs.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	qs, err := defs.GetQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	for i := range qs {
		if !qs[i].Type.Family().HasChoices() {
			continue
		}
		cs, err := defs.GetChoices(ctx, qs[i].ID)
		if err != nil {
			return nil, err
		}
		qs[i].Choices = cs
	}
	d := &Definition{Quiz: qz, Questions: qs}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the structural rules a quiz must satisfy before an attempt may start.
func Validate(d *Definition) error {
	if len(d.Questions) == 0 || d.TotalPoints() <= 0 {
		return ErrEmptyQuiz
	}
	seen := make(map[string]struct{}, len(d.Questions))
	for _, q := range d.Questions {
		if _, dup := seen[q.ID]; dup {
			return invalid(q, "duplicate question id")
		}
		seen[q.ID] = struct{}{}
		if !q.Type.Valid() {
			return invalid(q, fmt.Sprintf("unknown type %q", q.Type))
		}
		if q.Points <= 0 {
			return invalid(q, "points must be positive")
		}
		if q.TimeLimitSec <= 0 {
			return invalid(q, "time limit must be positive")
		}
		if err := validateChoices(q); err != nil {
			return err
		}
	}
	return nil
}

func validateChoices(q Question) error {
	fam := q.Type.Family()
	if !fam.HasChoices() {
		return nil
	}
	if len(q.Choices) == 0 {
		return invalid(q, "select question without choices")
	}
	correct := 0
	for _, c := range q.Choices {
		if c.IsCorrect {
			correct++
		}
		if fam == FamilyMatching && c.MatchKey == "" {
			return invalid(q, fmt.Sprintf("choice %s has no match key", c.ID))
		}
	}
	switch fam {
	case FamilySingleSelect:
		if correct != 1 {
			return invalid(q, fmt.Sprintf("single-select needs exactly one correct choice, has %d", correct))
		}
	case FamilyMultiSelect:
		if correct == 0 {
			return invalid(q, "multi-select needs at least one correct choice")
		}
	}
	return nil
}

func invalid(q Question, why string) error {
	return errors.Wrapf(ErrInvalidDefinition, "question %s: %s", q.ID, why)
}
