// Package scoring turns earned points into a percentage and a classification.
package scoring

import (
	"fmt"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type Result string

const (
	Passed       Result = "passed"
	Failed       Result = "failed"
	Beginner     Result = "beginner"
	Intermediate Result = "intermediate"
	Advanced     Result = "advanced"
)

// Percentage is earned/total*100 clamped to [0, 100]. A non-positive total scores 0.
func Percentage(earned, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(earned) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Tally counts answered questions of one difficulty.
type Tally struct {
	Answered int
	Correct  int
}

// Summary is everything a classifier may look at.
type Summary struct {
	Earned       int
	Total        int
	Score        float64
	ByDifficulty map[quiz.Difficulty]Tally
}

// Leveler classifies a placement test.
type Leveler interface {
	Level(s Summary) Result
	Name() string
}

// FlatCutoffs places by overall score: below IntermediateAt is beginner,
// below AdvancedAt is intermediate, otherwise advanced.
type FlatCutoffs struct {
	IntermediateAt float64
	AdvancedAt     float64
}

func DefaultCutoffs() FlatCutoffs { return FlatCutoffs{IntermediateAt: 40, AdvancedAt: 75} }

func (FlatCutoffs) Name() string { return "flat" }

func (f FlatCutoffs) Level(s Summary) Result {
	switch {
	case s.Score >= f.AdvancedAt:
		return Advanced
	case s.Score >= f.IntermediateAt:
		return Intermediate
	default:
		return Beginner
	}
}

// DifficultyBuckets places by per-difficulty accuracy: advanced when the
// advanced questions were answered at MinAccuracy or better, else intermediate
// on the same rule, else beginner.
type DifficultyBuckets struct {
	MinAccuracy float64
}

func DefaultBuckets() DifficultyBuckets { return DifficultyBuckets{MinAccuracy: 0.7} }

func (DifficultyBuckets) Name() string { return "difficulty" }

func (b DifficultyBuckets) Level(s Summary) Result {
	if b.meets(s.ByDifficulty[quiz.Advanced]) {
		return Advanced
	}
	if b.meets(s.ByDifficulty[quiz.Intermediate]) {
		return Intermediate
	}
	return Beginner
}

func (b DifficultyBuckets) meets(t Tally) bool {
	if t.Answered == 0 {
		return false
	}
	return float64(t.Correct)/float64(t.Answered) >= b.MinAccuracy
}

// Policy decides the Result of a finished attempt.
type Policy struct {
	Placement            Leveler
	DefaultPassThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{Placement: DefaultCutoffs(), DefaultPassThreshold: quiz.DefaultPassThreshold}
}

// LevelerByName resolves a configured strategy name.
func LevelerByName(name string, cutoffs FlatCutoffs, buckets DifficultyBuckets) (Leveler, error) {
	switch name {
	case "", "flat":
		return cutoffs, nil
	case "difficulty":
		return buckets, nil
	default:
		return nil, fmt.Errorf("unknown placement strategy %q", name)
	}
}

func (p Policy) Classify(qz quiz.Quiz, s Summary) Result {
	if qz.IsPlacementTest {
		lv := p.Placement
		if lv == nil {
			lv = DefaultCutoffs()
		}
		return lv.Level(s)
	}
	threshold := qz.PassThreshold
	if threshold <= 0 {
		threshold = p.DefaultPassThreshold
	}
	if s.Score >= threshold {
		return Passed
	}
	return Failed
}

// Graded is one answered question as seen by the scorer.
type Graded struct {
	Difficulty quiz.Difficulty
	Points     int
	Correct    bool
}

// Summarize totals the graded answers against the quiz's total points.
// Unanswered questions count toward total but not toward any tally.
func Summarize(total int, answers []Graded) Summary {
	s := Summary{Total: total, ByDifficulty: map[quiz.Difficulty]Tally{}}
	for _, a := range answers {
		s.Earned += a.Points
		if a.Difficulty != "" {
			t := s.ByDifficulty[a.Difficulty]
			t.Answered++
			if a.Correct {
				t.Correct++
			}
			s.ByDifficulty[a.Difficulty] = t
		}
	}
	s.Score = Percentage(s.Earned, s.Total)
	return s
}
