package attempt

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	attempts  map[string]Attempt
	bySubject map[string]string // subject|quiz -> attempt id
	answers   map[string][]Answer
	grades    map[string]map[string]Grade // attempt id -> question id -> grade
}

// NewMemoryStore returns a Store kept in process memory.
func NewMemoryStore() Store {
	return &memoryStore{
		attempts:  make(map[string]Attempt),
		bySubject: make(map[string]string),
		answers:   make(map[string][]Answer),
		grades:    make(map[string]map[string]Grade),
	}
}

func subjectKey(subjectID, quizID string) string { return subjectID + "|" + quizID }

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := subjectKey(a.SubjectID, a.QuizID)
	if _, ok := m.bySubject[k]; ok {
		return ErrDuplicateAttempt
	}
	if _, ok := m.attempts[a.ID]; ok {
		return ErrDuplicateAttempt
	}
	m.attempts[a.ID] = a
	m.bySubject[k] = a.ID
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *memoryStore) FindAttempt(_ context.Context, subjectID, quizID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySubject[subjectKey(subjectID, quizID)]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return m.attempts[id], nil
}

func (m *memoryStore) UpdateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(a)
}

func (m *memoryStore) updateLocked(a Attempt) error {
	cur, ok := m.attempts[a.ID]
	if !ok {
		return ErrAttemptNotFound
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}
	a.Version++
	m.attempts[a.ID] = a
	return nil
}

func (m *memoryStore) AppendAnswer(_ context.Context, ans Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(ans)
}

func (m *memoryStore) appendLocked(ans Answer) error {
	if _, ok := m.attempts[ans.AttemptID]; !ok {
		return ErrAttemptNotFound
	}
	for _, prev := range m.answers[ans.AttemptID] {
		if prev.QuestionID == ans.QuestionID || prev.Seq == ans.Seq {
			return ErrDuplicateAnswer
		}
	}
	ans.Grade = nil
	m.answers[ans.AttemptID] = append(m.answers[ans.AttemptID], ans)
	return nil
}

func (m *memoryStore) RecordAnswer(_ context.Context, a Attempt, ans Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// check both before mutating either
	cur, ok := m.attempts[a.ID]
	if !ok {
		return ErrAttemptNotFound
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}
	if err := m.appendLocked(ans); err != nil {
		return err
	}
	return m.updateLocked(a)
}

func (m *memoryStore) ListAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.attempts[attemptID]; !ok {
		return nil, ErrAttemptNotFound
	}
	out := append([]Answer(nil), m.answers[attemptID]...)
	for i := range out {
		if g, ok := m.grades[attemptID][out[i].QuestionID]; ok {
			out[i].Grade = &g
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memoryStore) PutGrade(_ context.Context, attemptID, questionID string, g Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, ans := range m.answers[attemptID] {
		if ans.QuestionID == questionID {
			found = true
			break
		}
	}
	if !found {
		return ErrAnswerNotFound
	}
	if m.grades[attemptID] == nil {
		m.grades[attemptID] = make(map[string]Grade)
	}
	m.grades[attemptID][questionID] = g
	return nil
}

func (m *memoryStore) ListAttempts(_ context.Context, f Filter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if f.QuizID != "" && a.QuizID != f.QuizID {
			continue
		}
		if f.SubjectID != "" && a.SubjectID != f.SubjectID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f), nil
}

func page(xs []Attempt, f Filter) []Attempt {
	if f.Offset > 0 {
		if f.Offset >= len(xs) {
			return nil
		}
		xs = xs[f.Offset:]
	}
	if f.Limit > 0 && len(xs) > f.Limit {
		xs = xs[:f.Limit]
	}
	return xs
}
