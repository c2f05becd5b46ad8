package store

import (
	"context"
	"strings"
	"sync"
)

// LockSet serializes work on account prefixes. Two prefixes conflict when
// one is a prefix of the other, so "411" and "4111" never run together
// while "401" and "411" do. The empty prefix covers every account.
type LockSet struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLockSet creates an empty lock set.
func NewLockSet() *LockSet {
	return &LockSet{held: make(map[string]chan struct{})}
}

// Acquire blocks until no conflicting prefix is held, or ctx is done.
// The returned function releases the lock.
func (s *LockSet) Acquire(ctx context.Context, prefix string) (func(), error) {
	for {
		s.mu.Lock()
		wait := s.conflict(prefix)
		if wait == nil {
			release := s.register(prefix)
			s.mu.Unlock()
			return release, nil
		}
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryAcquire takes the lock only if it is free right now.
func (s *LockSet) TryAcquire(prefix string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflict(prefix) != nil {
		return nil, false
	}
	return s.register(prefix), true
}

// register marks prefix as held. s.mu must be held.
func (s *LockSet) register(prefix string) func() {
	done := make(chan struct{})
	s.held[prefix] = done

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, prefix)
			s.mu.Unlock()
			close(done)
		})
	}
}

// Held lists the prefixes currently locked.
func (s *LockSet) Held() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.held))
	for p := range s.held {
		out = append(out, p)
	}
	return out
}

// conflict returns the release channel of a conflicting holder. s.mu must
// be held.
func (s *LockSet) conflict(prefix string) chan struct{} {
	for p, done := range s.held {
		if strings.HasPrefix(p, prefix) || strings.HasPrefix(prefix, p) {
			return done
		}
	}
	return nil
}
