// Package shared implements the cross-VU key/value store backing the
// scripting runtime's "shared" module: get/set/delete, an atomic counter,
// and wait/barrier synchronization primitives. Ported from the original
// implementation's store.rs (tokio watch channel + barrier) onto Go
// channels and a sync.Mutex.
package shared

import (
	"context"
	"fmt"
	"sync"

	"github.com/nogcio/wrkr/internal/value"
)

// BarrierError reports a misuse of Barrier.
type BarrierError struct {
	Msg string
}

func (e *BarrierError) Error() string { return e.Msg }

type waiter struct {
	ch chan struct{}
}

type barrierEntry struct {
	parties  int
	arrived  int
	release  chan struct{}
}

// Store is the process-wide shared key/value space for one run, visible to
// every VU's script host.
type Store struct {
	mu       sync.Mutex
	values   map[string]value.Value
	waiters  map[string][]waiter
	barriers map[string]*barrierEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		values:   make(map[string]value.Value),
		waiters:  make(map[string][]waiter),
		barriers: make(map[string]*barrierEntry),
	}
}

// Set stores value at key, waking any goroutine blocked in Wait for it.
func (s *Store) Set(key string, v value.Value) {
	s.mu.Lock()
	s.values[key] = v
	ws := s.waiters[key]
	delete(s.waiters, key)
	s.mu.Unlock()

	for _, w := range ws {
		close(w.ch)
	}
}

// Get returns the value at key, if any.
func (s *Store) Get(key string) (value.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes key, a no-op if absent.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Incr adds delta to the I64 counter at key (treating a missing or
// non-I64 value as 0) and returns the new total.
func (s *Store) Incr(key string, delta int64) int64 {
	s.mu.Lock()
	cur := int64(0)
	if v, ok := s.values[key]; ok {
		if i, ok := v.AsI64(); ok {
			cur = i
		}
	}
	next := cur + delta
	s.values[key] = value.I64(next)
	ws := s.waiters[key]
	delete(s.waiters, key)
	s.mu.Unlock()

	for _, w := range ws {
		close(w.ch)
	}
	return next
}

// Counter returns the I64 counter at key, 0 if absent or non-I64.
func (s *Store) Counter(key string) int64 {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	i, _ := v.AsI64()
	return i
}

// Wait blocks until key is set, or ctx is cancelled.
func (s *Store) Wait(ctx context.Context, key string) error {
	s.mu.Lock()
	if _, ok := s.values[key]; ok {
		s.mu.Unlock()
		return nil
	}
	w := waiter{ch: make(chan struct{})}
	s.waiters[key] = append(s.waiters[key], w)
	s.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Barrier blocks until parties goroutines have called Barrier with the same
// name and party count, then releases all of them together. Reusing a name
// with a different party count is a misuse error.
func (s *Store) Barrier(ctx context.Context, name string, parties int) error {
	if parties <= 0 {
		return &BarrierError{Msg: "barrier parties must be > 0"}
	}

	s.mu.Lock()
	e, ok := s.barriers[name]
	if !ok {
		e = &barrierEntry{parties: parties, release: make(chan struct{})}
		s.barriers[name] = e
	} else if e.parties != parties {
		s.mu.Unlock()
		return &BarrierError{Msg: fmt.Sprintf("barrier %q parties mismatch: expected %d, got %d", name, e.parties, parties)}
	}
	e.arrived++
	release := e.release
	if e.arrived >= e.parties {
		delete(s.barriers, name)
		close(release)
	}
	s.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
