// Package events carries attempt lifecycle notifications to the outside world.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	AttemptStarted   = "attempt.started"
	AnswerRecorded   = "answer.recorded"
	AttemptFinalized = "attempt.finalized"
	GradeApplied     = "grade.applied"
	AttemptRescored  = "attempt.rescored"
)

type Event struct {
	Type string    `json:"type"`
	Key  string    `json:"key"` // attempt id
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout publishes to every publisher and joins their failures.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var result error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Memory records events in order. Useful for tests and local inspection.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types lists the recorded event types in order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
