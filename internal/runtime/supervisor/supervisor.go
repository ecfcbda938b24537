// Package supervisor runs the bot's long-lived loops (bus listener, config
// watcher, status server) with panic recovery and restart backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "charitybot/pkg/logx"

	"github.com/jonboulle/clockwork"
)

// Supervisor manages goroutines tied to a shared context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log   logx.Logger
	clock clockwork.Clock
	wg    sync.WaitGroup

	mu       sync.Mutex
	firstErr error
	stats    map[string]*Stats
}

// Stats is a best-effort view of one named goroutine.
type Stats struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Restarts  int       `json:"restarts"`
	Panics    int       `json:"panics"`
	StartedAt time.Time `json:"started_at"`
	LastErr   string    `json:"last_err,omitempty"`
	LastErrAt time.Time `json:"last_err_at,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

func WithClock(c clockwork.Clock) Option { return func(s *Supervisor) { s.clock = c } }

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		clock:  clockwork.NewRealClock(),
		stats:  map[string]*Stats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error any goroutine reported.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Snapshot returns goroutine stats sorted by name.
func (s *Supervisor) Snapshot() []Stats {
	s.mu.Lock()
	out := make([]Stats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Go runs fn once. Panics are recovered and recorded as errors.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.note(name, func(st *Stats) { st.Running = true; st.StartedAt = s.clock.Now() })
		err := s.run(name, fn)
		s.finish(name, err)
	}()
}

// GoRestart runs fn and restarts it with exponential backoff (min..max)
// whenever it returns an error or panics. A nil return stops the loop.
func (s *Supervisor) GoRestart(name string, min, max time.Duration, fn func(ctx context.Context) error) {
	if min <= 0 {
		min = 250 * time.Millisecond
	}
	if max < min {
		max = min
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := min
		for attempt := 0; ; attempt++ {
			startedAt := s.clock.Now()
			s.note(name, func(st *Stats) {
				st.Running = true
				st.StartedAt = startedAt
				if attempt > 0 {
					st.Restarts++
				}
			})
			err := s.run(name, fn)
			if err == nil || s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.finish(name, nil)
				return
			}
			s.finish(name, err)

			// A long healthy run resets the backoff.
			if s.clock.Since(startedAt) >= 30*time.Second {
				backoff = min
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", backoff), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-s.clock.After(backoff):
			}
			backoff *= 2
			if backoff > max {
				backoff = max
			}
		}
	}()
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(st *Stats) { st.Panics++ })
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	s.log.Debug("goroutine started", logx.String("name", name))
	return fn(s.ctx)
}

func (s *Supervisor) finish(name string, err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	now := s.clock.Now()
	s.mu.Lock()
	st := s.statsLocked(name)
	st.Running = false
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		st.LastErr = err.Error()
		st.LastErrAt = now
		if s.firstErr == nil {
			s.firstErr = err
		}
	}
	s.mu.Unlock()
	s.log.Debug("goroutine stopped", logx.String("name", name), logx.Err(err))
}

func (s *Supervisor) note(name string, fn func(st *Stats)) {
	s.mu.Lock()
	fn(s.statsLocked(name))
	s.mu.Unlock()
}

func (s *Supervisor) statsLocked(name string) *Stats {
	st := s.stats[name]
	if st == nil {
		st = &Stats{Name: name}
		s.stats[name] = st
	}
	return st
}

// Stop cancels the shared context and waits for every goroutine, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}
