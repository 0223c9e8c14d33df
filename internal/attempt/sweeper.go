package attempt

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/timer"
)

// Sweeper expires attempts whose clocks ran out while nobody was submitting.
// It only closes gaps; every expiry it applies is one a client could request itself.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	batch    int
}

func NewSweeper(e *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{engine: e, interval: interval, batch: 500}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			passCtx, cancel := context.WithTimeout(ctx, s.interval)
			if _, err := s.Sweep(passCtx); err != nil && ctx.Err() == nil {
				log.Printf("sweep: %v", err)
			}
			cancel()
		}
	}
}

// Sweep makes one pass over in-progress attempts and returns how many expiries it applied.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	applied, open := 0, 0
	for offset := 0; ; offset += s.batch {
		page, err := s.engine.store.ListAttempts(ctx, Filter{Status: StatusInProgress, Limit: s.batch, Offset: offset})
		if err != nil {
			return applied, err
		}
		for _, a := range page {
			n, closed, err := s.expire(ctx, a)
			if err != nil {
				log.Printf("sweep attempt %s: %v", a.ID, err)
			}
			applied += n
			if !closed {
				open++
			}
		}
		if len(page) < s.batch {
			break
		}
	}
	s.engine.metrics.InProgress(open)
	return applied, nil
}

// expire applies every expiry due on a, question by question, until nothing more is due.
// closed reports whether a left in_progress.
func (s *Sweeper) expire(ctx context.Context, a Attempt) (applied int, closed bool, err error) {
	def, err := quiz.Load(ctx, s.engine.defs, a.QuizID)
	if err != nil {
		return 0, false, err
	}
	for a.Status == StatusInProgress && a.Cursor < len(def.Questions) {
		q := def.Questions[a.Cursor]
		switch timer.Check(budget(def, a, q), s.engine.clock.Now(), 0).Expiry {
		case timer.AttemptExpired:
			_, err := s.engine.ExpireAttempt(ctx, a.ID)
			if errors.Is(err, ErrAttemptAlreadyTerminal) {
				return applied, true, nil
			}
			if err != nil {
				return applied, false, err
			}
			return applied + 1, true, nil
		case timer.QuestionExpired:
			p, err := s.engine.ExpireCurrentQuestion(ctx, a.ID)
			if err != nil {
				if errors.Is(err, ErrAttemptAlreadyTerminal) {
					return applied, true, nil
				}
				if errors.Is(err, ErrQuestionMismatch) || errors.Is(err, ErrQuestionNotExpired) {
					return applied, false, nil
				}
				return applied, false, err
			}
			applied++
			a = p.Attempt
		default:
			return applied, false, nil
		}
	}
	return applied, a.Status.Terminal(), nil
}
