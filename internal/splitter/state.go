// Package splitter divides donations among beneficiaries and forwards leftover balance.
package splitter

import (
	"context"
	"fmt"
	"sync"

	"charitybot/internal/donation"
	"charitybot/internal/metrics"
	"charitybot/internal/storage"
	logx "charitybot/pkg/logx"
)

const keyTipQueue = "tipQueue"

type role int

const (
	roleSplitter role = iota + 1
	roleReconciler
)

// State is the tip queue plus the two processing flags. At most one of
// splitter and reconciler holds it at a time.
type State struct {
	mu     sync.Mutex
	queue  []donation.Event
	holder role

	store storage.Store
	log   logx.Logger
}

// NewState loads the persisted tip queue.
func NewState(ctx context.Context, store storage.Store, log logx.Logger) (*State, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &State{store: store, log: log}
	if _, err := store.Get(ctx, keyTipQueue, &s.queue); err != nil {
		return nil, fmt.Errorf("load %s: %w", keyTipQueue, err)
	}
	metrics.TipQueueDepth.Set(float64(len(s.queue)))
	return s, nil
}

// Enqueue appends ev and persists the queue. On a persist error the event
// stays queued in memory and is written with the next successful persist.
func (s *State) Enqueue(ctx context.Context, ev donation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, ev)
	return s.persistLocked(ctx)
}

func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Snapshot returns a copy of the queue.
func (s *State) Snapshot() []donation.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]donation.Event(nil), s.queue...)
}

// Busy reports which flags are set.
func (s *State) Busy() (splitter, reconciler bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder == roleSplitter, s.holder == roleReconciler
}

// acquireHead takes the splitter flag and returns the head event.
func (s *State) acquireHead() (donation.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder != 0 || len(s.queue) == 0 {
		return donation.Event{}, false
	}
	s.holder = roleSplitter
	return s.queue[0], true
}

// acquireIdle takes the reconciler flag when the queue is empty.
func (s *State) acquireIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder != 0 || len(s.queue) != 0 {
		return false
	}
	s.holder = roleReconciler
	return true
}

func (s *State) release(r role) {
	s.mu.Lock()
	if s.holder == r {
		s.holder = 0
	}
	s.mu.Unlock()
}

// popHead removes the head if it is still id and persists. It returns the
// remaining queue length.
func (s *State) popHead(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0].ID != id {
		return len(s.queue), fmt.Errorf("tip queue head changed (want %s)", id)
	}
	s.queue[0] = donation.Event{}
	s.queue = s.queue[1:]
	return len(s.queue), s.persistLocked(ctx)
}

func (s *State) persistLocked(ctx context.Context) error {
	metrics.TipQueueDepth.Set(float64(len(s.queue)))
	q := s.queue
	if q == nil {
		q = []donation.Event{}
	}
	if err := s.store.Set(ctx, keyTipQueue, q); err != nil {
		metrics.StoreWritesTotal.WithLabelValues(keyTipQueue, "error").Inc()
		s.log.Error("persist tip queue failed", logx.Int("len", len(q)), logx.Err(err))
		return fmt.Errorf("persist %s: %w", keyTipQueue, err)
	}
	metrics.StoreWritesTotal.WithLabelValues(keyTipQueue, "ok").Inc()
	return nil
}
