// Package lock serializes mutations of one attempt.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a key until the returned release func is called.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process keyed mutex. Entries are dropped when nobody holds or waits on them.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local { return &Local{keys: make(map[string]*entry)} }

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(key, e)
		})
	}, nil
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}

// held reports how many keys have holders or waiters.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
