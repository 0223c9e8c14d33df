package grading

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/fault"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

var ErrMalformedResponse = fault.New(fault.InvalidInput, "malformed response")

// Outcome is the result of evaluating one response.
type Outcome struct {
	IsCorrect    bool `json:"is_correct"`
	PointsEarned int  `json:"points_earned"`
	NeedsManual  bool `json:"needs_manual"` // stored for a human grade
}

// Evaluate grades r against q. It is a pure function: no clock, no I/O.
// NoResponse (timer expiry) earns nothing for every question type.
func Evaluate(q quiz.Question, r Response) (Outcome, error) {
	if r == nil {
		return Outcome{}, malformed(q, "nil response")
	}
	if _, none := r.(NoResponse); none {
		return Outcome{}, nil
	}
	switch fam := q.Type.Family(); fam {
	case quiz.FamilySingleSelect:
		sel, ok := r.(Selection)
		if !ok {
			return Outcome{}, wrongKind(q, r)
		}
		return evalSingle(q, sel)
	case quiz.FamilyMultiSelect:
		sel, ok := r.(Selection)
		if !ok {
			return Outcome{}, wrongKind(q, r)
		}
		return evalMulti(q, sel)
	case quiz.FamilyMatching:
		p, ok := r.(Pairing)
		if !ok {
			return Outcome{}, wrongKind(q, r)
		}
		return evalMatching(q, p)
	case quiz.FamilyText:
		if _, ok := r.(Text); !ok {
			return Outcome{}, wrongKind(q, r)
		}
		return Outcome{NeedsManual: true}, nil
	case quiz.FamilyUpload:
		up, ok := r.(Upload)
		if !ok {
			return Outcome{}, wrongKind(q, r)
		}
		if up.Ref == "" {
			return Outcome{}, malformed(q, "upload reference required")
		}
		return Outcome{NeedsManual: true}, nil
	default:
		return Outcome{}, malformed(q, fmt.Sprintf("unsupported question type %q", q.Type))
	}
}

func evalSingle(q quiz.Question, sel Selection) (Outcome, error) {
	switch len(sel.ChoiceIDs) {
	case 0:
		return Outcome{}, nil
	case 1:
	default:
		return Outcome{}, malformed(q, "single-select accepts one choice")
	}
	c, ok := choice(q, sel.ChoiceIDs[0])
	if !ok {
		return Outcome{}, malformed(q, "unknown choice "+sel.ChoiceIDs[0])
	}
	if c.IsCorrect {
		return full(q), nil
	}
	return Outcome{}, nil
}

// No partial credit: the selected set must equal the correct set.
func evalMulti(q quiz.Question, sel Selection) (Outcome, error) {
	picked := toSet(sel.ChoiceIDs)
	correct := map[string]struct{}{}
	for _, c := range q.Choices {
		if c.IsCorrect {
			correct[c.ID] = struct{}{}
		}
	}
	for id := range picked {
		if _, ok := choice(q, id); !ok {
			return Outcome{}, malformed(q, "unknown choice "+id)
		}
	}
	if setEqual(picked, correct) {
		return full(q), nil
	}
	return Outcome{}, nil
}

func evalMatching(q quiz.Question, p Pairing) (Outcome, error) {
	for id := range p.Pairs {
		if _, ok := choice(q, id); !ok {
			return Outcome{}, malformed(q, "unknown choice "+id)
		}
	}
	for _, c := range q.Choices {
		if p.Pairs[c.ID] != c.MatchKey {
			return Outcome{}, nil
		}
	}
	return full(q), nil
}

func full(q quiz.Question) Outcome { return Outcome{IsCorrect: true, PointsEarned: q.Points} }

func choice(q quiz.Question, id string) (quiz.Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return quiz.Choice{}, false
}

func wrongKind(q quiz.Question, r Response) error {
	return malformed(q, fmt.Sprintf("%s response for %s question", r.Kind(), q.Type))
}

func malformed(q quiz.Question, why string) error {
	return errors.Wrapf(ErrMalformedResponse, "question %s: %s", q.ID, why)
}

// --- helpers ---

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
