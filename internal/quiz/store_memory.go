package quiz

import (
	"context"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// MemoryStore is an in-process Definitions used in tests and for seeded deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	quizzes   map[string]Quiz
	questions map[string][]Question // quizID -> questions (choices stripped)
	choices   map[string][]Choice   // questionID -> choices
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:   make(map[string]Quiz),
		questions: make(map[string][]Question),
		choices:   make(map[string][]Choice),
	}
}

// Put replaces the definition of d.Quiz.ID.
func (m *MemoryStore) Put(_ context.Context, d Definition) error {
	if d.Quiz.ID == "" {
		return errors.Wrap(ErrInvalidDefinition, "quiz id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.questions[d.Quiz.ID] {
		delete(m.choices, q.ID)
	}
	qs := make([]Question, 0, len(d.Questions))
	for i, q := range d.Questions {
		q.QuizID = d.Quiz.ID
		if q.Order == 0 {
			q.Order = i + 1
		}
		m.choices[q.ID] = append([]Choice(nil), q.Choices...)
		q.Choices = nil
		qs = append(qs, q)
	}
	m.quizzes[d.Quiz.ID] = d.Quiz
	m.questions[d.Quiz.ID] = qs
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, quizID string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qz, ok := m.quizzes[quizID]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return qz, nil
}

func (m *MemoryStore) GetQuestions(_ context.Context, quizID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.quizzes[quizID]; !ok {
		return nil, ErrQuizNotFound
	}
	return append([]Question(nil), m.questions[quizID]...), nil
}

func (m *MemoryStore) GetChoices(_ context.Context, questionID string) ([]Choice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Choice(nil), m.choices[questionID]...), nil
}

// seedQuiz is the on-disk shape of one quiz in a seed file.
type seedQuiz struct {
	Quiz
	Questions []Question `json:"questions"`
}

// ReadSeed decodes a JSON array of quizzes with inline questions and choices.
func ReadSeed(r io.Reader) ([]Definition, error) {
	var raw []seedQuiz
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	out := make([]Definition, 0, len(raw))
	for _, s := range raw {
		d := Definition{Quiz: s.Quiz, Questions: s.Questions}
		if d.Quiz.PassThreshold == 0 && !d.Quiz.IsPlacementTest {
			d.Quiz.PassThreshold = DefaultPassThreshold
		}
		out = append(out, d)
	}
	return out, nil
}

// Putter is implemented by stores that accept definitions.
type Putter interface {
	Put(ctx context.Context, d Definition) error
}

// Seed stores every definition read from r into dst.
func Seed(ctx context.Context, dst Putter, r io.Reader) (int, error) {
	defs, err := ReadSeed(r)
	if err != nil {
		return 0, err
	}
	for _, d := range defs {
		if err := dst.Put(ctx, d); err != nil {
			return 0, errors.Wrapf(err, "seed quiz %s", d.Quiz.ID)
		}
	}
	return len(defs), nil
}

// DefaultPassThreshold is the pass mark applied to quizzes that do not set one.
const DefaultPassThreshold = 60.0
