// Package poster queues announcements and publishes them under a per-window quota.
package poster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"charitybot/internal/eventbus"
	"charitybot/internal/metrics"
	"charitybot/internal/social"
	"charitybot/internal/storage"
	logx "charitybot/pkg/logx"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	keyPostQueue      = "postQueue"
	keyWindowStart    = "windowStart"
	keyRemainingQuota = "remainingQuota"

	DefaultQuota  = 15
	DefaultWindow = 15 * time.Minute
)

// PostItem is one queued announcement. The correlation fields identify the
// donation it announces.
type PostItem struct {
	ID          string    `json:"id"`
	Body        string    `json:"body"`
	Greeting    string    `json:"greeting"`
	User        string    `json:"user,omitempty"`
	UserNetwork string    `json:"user_network,omitempty"`
	TipNetwork  string    `json:"tip_network,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Greeter regenerates the greeting suffix for a duplicate-rejected post.
type Greeter interface {
	Greeting() string
}

type Config struct {
	Quota  int
	Window time.Duration
}

type Deps struct {
	Store   storage.Store
	Poster  social.Poster
	Greeter Greeter
	Clock   clockwork.Clock
	Bus     eventbus.Bus
	Log     logx.Logger
}

// Scheduler sends at most one post per Tick and never more than Quota
// posts per Window. Queue and window state are persisted on every change.
type Scheduler struct {
	cfg Config

	mu          sync.Mutex
	queue       []PostItem
	windowStart time.Time
	remaining   int
	sending     bool

	store  storage.Store
	poster social.Poster
	greet  Greeter
	clock  clockwork.Clock
	bus    eventbus.Bus
	log    logx.Logger
}

// Snapshot is the scheduler state for the status endpoint.
type Snapshot struct {
	Queue          []PostItem `json:"queue"`
	WindowStart    time.Time  `json:"window_start"`
	RemainingQuota int        `json:"remaining_quota"`
	Quota          int        `json:"quota"`
	Window         string     `json:"window"`
	Sending        bool       `json:"sending"`
}

// New restores the persisted queue and rate window.
func New(ctx context.Context, cfg Config, d Deps) (*Scheduler, error) {
	if d.Store == nil || d.Poster == nil {
		return nil, errors.New("poster: store and poster are required")
	}
	if cfg.Quota <= 0 {
		cfg.Quota = DefaultQuota
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	s := &Scheduler{
		cfg:       cfg,
		remaining: cfg.Quota,
		store:     d.Store,
		poster:    d.Poster,
		greet:     d.Greeter,
		clock:     d.Clock,
		bus:       d.Bus,
		log:       d.Log,
	}
	if _, err := d.Store.Get(ctx, keyPostQueue, &s.queue); err != nil {
		return nil, fmt.Errorf("load %s: %w", keyPostQueue, err)
	}
	if _, err := d.Store.Get(ctx, keyWindowStart, &s.windowStart); err != nil {
		return nil, fmt.Errorf("load %s: %w", keyWindowStart, err)
	}
	if _, err := d.Store.Get(ctx, keyRemainingQuota, &s.remaining); err != nil {
		return nil, fmt.Errorf("load %s: %w", keyRemainingQuota, err)
	}
	if s.remaining > cfg.Quota {
		s.remaining = cfg.Quota
	}
	if s.remaining < 0 {
		s.remaining = 0
	}
	metrics.PostQueueDepth.Set(float64(len(s.queue)))
	metrics.PostRemainingQuota.Set(float64(s.remaining))
	return s, nil
}

// Push appends a post and persists the queue.
func (s *Scheduler) Push(ctx context.Context, it PostItem) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.clock.Now()
	}
	s.mu.Lock()
	s.queue = append(s.queue, it)
	n := len(s.queue)
	err := s.persistQueueLocked(ctx)
	s.mu.Unlock()

	s.log.Debug("post queued", logx.String("post_id", it.ID), logx.Int("queue", n))
	s.bus.Publish(eventbus.Event{Type: eventbus.PostQueued, Data: map[string]any{"post_id": it.ID}})
	return err
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Queue:          append([]PostItem(nil), s.queue...),
		WindowStart:    s.windowStart,
		RemainingQuota: s.remaining,
		Quota:          s.cfg.Quota,
		Window:         s.cfg.Window.String(),
		Sending:        s.sending,
	}
}

// Tick opens a new window if due, then sends the head post if quota allows.
// Posts are never dropped for lack of quota; they wait for the next window.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}

	now := s.clock.Now()
	if !now.Before(s.windowStart.Add(s.cfg.Window)) {
		prevStart, prevRemaining := s.windowStart, s.remaining
		s.windowStart = now
		s.remaining = s.cfg.Quota
		if err := s.persistWindowLocked(ctx); err != nil {
			// No send may count against a window that is not on disk.
			s.windowStart, s.remaining = prevStart, prevRemaining
			metrics.PostRemainingQuota.Set(float64(s.remaining))
			s.mu.Unlock()
			return err
		}
		s.log.Debug("rate window opened", logx.Time("start", now), logx.Int("quota", s.cfg.Quota))
		s.bus.Publish(eventbus.Event{Type: eventbus.RateWindowOpened, Data: map[string]any{"quota": s.cfg.Quota}})
	}
	if s.sending {
		s.mu.Unlock()
		return nil
	}
	if s.remaining <= 0 {
		s.log.Debug("post deferred; quota exhausted",
			logx.Int("queue", len(s.queue)), logx.Time("window_ends", s.windowStart.Add(s.cfg.Window)))
		s.mu.Unlock()
		return nil
	}

	// The decrement must be durable before the send goes out.
	s.remaining--
	if err := s.setLocked(ctx, keyRemainingQuota, s.remaining); err != nil {
		s.remaining++
		s.mu.Unlock()
		return err
	}
	metrics.PostRemainingQuota.Set(float64(s.remaining))
	s.sending = true
	item := s.queue[0]
	s.mu.Unlock()

	sendErr := s.send(ctx, item)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false
	if sendErr != nil && ctx.Err() != nil {
		// Shutting down mid-send: keep the post so it is retried after restart.
		s.log.Warn("post interrupted; kept for retry", logx.String("post_id", item.ID), logx.Err(sendErr))
		return sendErr
	}
	if len(s.queue) > 0 && s.queue[0].ID == item.ID {
		s.queue[0] = PostItem{}
		s.queue = s.queue[1:]
	}
	return s.persistQueueLocked(ctx)
}

// send posts item with at most one content-modified retry. A non-nil
// return means the post was dropped.
func (s *Scheduler) send(ctx context.Context, item PostItem) error {
	log := s.log.With(logx.String("post_id", item.ID), logx.String("user", item.User), logx.String("amount", item.Amount))

	err := s.poster.Send(ctx, item.Body+item.Greeting)
	if err == nil {
		s.sent(log, item, "")
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	var retry string
	switch social.Classify(err) {
	case social.ClassTooLong:
		log.Info("post too long; retrying without greeting", logx.Err(err))
		metrics.PostsTotal.WithLabelValues("retried_too_long").Inc()
		retry = item.Body
	case social.ClassDuplicate:
		if s.greet == nil {
			break
		}
		log.Info("duplicate post; retrying with new greeting", logx.Err(err))
		metrics.PostsTotal.WithLabelValues("retried_duplicate").Inc()
		retry = item.Body + s.greet.Greeting()
	}
	if retry != "" {
		if err = s.poster.Send(ctx, retry); err == nil {
			s.sent(log, item, "retry")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}

	log.Error("post dropped", logx.String("text", item.Body), logx.Err(err))
	metrics.PostsTotal.WithLabelValues("dropped").Inc()
	s.bus.Publish(eventbus.Event{Type: eventbus.PostDropped, Data: map[string]any{"post_id": item.ID, "err": err.Error()}})
	return err
}

func (s *Scheduler) sent(log logx.Logger, item PostItem, via string) {
	log.Info("post sent", logx.String("via", via))
	metrics.PostsTotal.WithLabelValues("sent").Inc()
	s.bus.Publish(eventbus.Event{Type: eventbus.PostSent, Data: map[string]any{"post_id": item.ID}})
}

func (s *Scheduler) persistWindowLocked(ctx context.Context) error {
	if err := s.setLocked(ctx, keyWindowStart, s.windowStart); err != nil {
		return err
	}
	if err := s.setLocked(ctx, keyRemainingQuota, s.remaining); err != nil {
		return err
	}
	metrics.PostRemainingQuota.Set(float64(s.remaining))
	return nil
}

func (s *Scheduler) persistQueueLocked(ctx context.Context) error {
	metrics.PostQueueDepth.Set(float64(len(s.queue)))
	q := s.queue
	if q == nil {
		q = []PostItem{}
	}
	return s.setLocked(ctx, keyPostQueue, q)
}

func (s *Scheduler) setLocked(ctx context.Context, key string, v any) error {
	if err := s.store.Set(ctx, key, v); err != nil {
		metrics.StoreWritesTotal.WithLabelValues(key, "error").Inc()
		s.log.Error("persist failed", logx.String("key", key), logx.Err(err))
		return fmt.Errorf("persist %s: %w", key, err)
	}
	metrics.StoreWritesTotal.WithLabelValues(key, "ok").Inc()
	return nil
}
