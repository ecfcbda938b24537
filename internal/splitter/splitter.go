package splitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charitybot/internal/donation"
	"charitybot/internal/eventbus"
	"charitybot/internal/metrics"
	"charitybot/internal/task/scheduler"
	logx "charitybot/pkg/logx"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var ErrNoBeneficiaries = errors.New("no beneficiaries")

// ReconcileJob is the name of the one-shot reconcile timer.
const ReconcileJob = "reconcile-after-drain"

// Payments is the payment API as the splitter sees it.
type Payments interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	Pay(ctx context.Context, user string, amount decimal.Decimal) error
}

// Announcer turns a processed event into a queued post.
type Announcer interface {
	Announce(ctx context.Context, ev donation.Event, shareMinor int64, beneficiaries []string) error
}

// Timer arms named one-shot jobs; arming a pending name replaces it.
type Timer interface {
	After(name string, d time.Duration, timeout time.Duration, job scheduler.Job) (string, error)
}

type Config struct {
	Scale          int64
	PayDelay       time.Duration // between beneficiary payments
	ReconcileDelay time.Duration // one-shot reconcile after the queue drains; unarmed if <= 0
}

type Deps struct {
	State         *State
	Payments      Payments
	Beneficiaries []string
	Announcer     Announcer
	Timer         Timer
	Reconciler    *Reconciler
	Clock         clockwork.Clock
	Bus           eventbus.Bus
	Log           logx.Logger
}

// Splitter drains the tip queue one event per call.
type Splitter struct {
	cfg   Config
	state *State
	pay   Payments
	bens  []string
	ann   Announcer
	timer Timer
	rec   *Reconciler
	clock clockwork.Clock
	bus   eventbus.Bus
	log   logx.Logger
}

func New(cfg Config, d Deps) (*Splitter, error) {
	if len(d.Beneficiaries) == 0 {
		return nil, ErrNoBeneficiaries
	}
	if d.State == nil || d.Payments == nil || d.Announcer == nil {
		return nil, errors.New("splitter: state, payments and announcer are required")
	}
	if cfg.Scale <= 0 {
		cfg.Scale = donation.DefaultScale
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
	return &Splitter{
		cfg:   cfg,
		state: d.State,
		pay:   d.Payments,
		bens:  append([]string(nil), d.Beneficiaries...),
		ann:   d.Announcer,
		timer: d.Timer,
		rec:   d.Reconciler,
		clock: d.Clock,
		bus:   d.Bus,
		log:   d.Log,
	}, nil
}

// Enqueue queues a donation event.
func (s *Splitter) Enqueue(ctx context.Context, ev donation.Event) error {
	metrics.TipsTotal.WithLabelValues("received").Inc()
	err := s.state.Enqueue(ctx, ev)
	s.log.Info("tip queued",
		logx.String("id", ev.ID), logx.String("type", string(ev.Kind)), logx.Stringer("amount", ev.Amount),
		logx.String("user", ev.User), logx.Int("queue", s.state.Len()))
	s.bus.Publish(eventbus.Event{Type: eventbus.TipQueued, Data: map[string]any{"id": ev.ID, "amount": ev.Amount.String()}})
	return err
}

// ProcessNext handles the head of the tip queue. It is a no-op while the
// splitter or reconciler is busy or the queue is empty. On error the event
// stays at the head and is retried on the next call.
func (s *Splitter) ProcessNext(ctx context.Context) error {
	ev, ok := s.state.acquireHead()
	if !ok {
		if n := s.state.Len(); n > 0 {
			sp, rc := s.state.Busy()
			s.log.Debug("tip tick skipped", logx.Int("queue", n), logx.Bool("splitter_busy", sp), logx.Bool("reconciler_busy", rc))
		}
		return nil
	}
	defer s.state.release(roleSplitter)

	log := s.log.With(logx.String("id", ev.ID), logx.Stringer("amount", ev.Amount), logx.String("user", ev.User))
	log.Info("splitting tip", logx.String("type", string(ev.Kind)), logx.Int("queue", s.state.Len()))

	balance, err := s.pay.Balance(ctx)
	if err != nil {
		log.Warn("balance read failed; tip kept", logx.Err(err))
		return fmt.Errorf("balance: %w", err)
	}

	n := int64(len(s.bens))
	share := donation.Split(donation.ToMinor(ev.Amount, s.cfg.Scale), n)
	if share == 0 {
		log.Info("tip too small to split; dropped", logx.Int("beneficiaries", len(s.bens)))
		metrics.TipsTotal.WithLabelValues("dropped").Inc()
		s.bus.Publish(eventbus.Event{Type: eventbus.TipDropped, Data: map[string]any{"id": ev.ID}})
		return s.consume(ctx, ev)
	}

	if balance.LessThan(ev.Amount) {
		log.Warn("balance below tip amount; announcing without payment", logx.Stringer("balance", balance))
		metrics.TipsTotal.WithLabelValues("underfunded").Inc()
		s.bus.Publish(eventbus.Event{Type: eventbus.TipUnderfunded, Data: map[string]any{"id": ev.ID, "balance": balance.String()}})
	} else {
		amount := donation.FromMinor(share, s.cfg.Scale)
		if err := payAll(ctx, s.pay, s.bens, amount, s.cfg.PayDelay, s.clock, "split", log); err != nil {
			return err
		}
		log.Info("tip split", logx.Stringer("share", amount), logx.Int("beneficiaries", len(s.bens)))
		metrics.TipsTotal.WithLabelValues("split").Inc()
		s.bus.Publish(eventbus.Event{Type: eventbus.TipSplit, Data: map[string]any{"id": ev.ID, "share": amount.String()}})
	}

	// The payments are done: finish the step even if shutdown started, and
	// announce even if persisting the pop failed.
	ctx = context.WithoutCancel(ctx)
	perr := s.consume(ctx, ev)
	if err := s.ann.Announce(ctx, ev, share, s.bens); err != nil {
		log.Error("announcement not queued", logx.Err(err))
	}
	return perr
}

// consume pops ev and arms the reconcile timer once the queue is empty.
func (s *Splitter) consume(ctx context.Context, ev donation.Event) error {
	left, err := s.state.popHead(ctx, ev.ID)
	if err != nil {
		return err
	}
	if left == 0 {
		s.armReconcile()
	}
	return nil
}

func (s *Splitter) armReconcile() {
	if s.timer == nil || s.rec == nil || s.cfg.ReconcileDelay <= 0 {
		return
	}
	if _, err := s.timer.After(ReconcileJob, s.cfg.ReconcileDelay, 0, s.rec.Reconcile); err != nil {
		s.log.Warn("arm reconcile failed", logx.Err(err))
		return
	}
	s.log.Debug("tip queue drained; reconcile armed", logx.Duration("in", s.cfg.ReconcileDelay))
}

// payAll pays amount to each beneficiary in order, waiting delay between
// calls. It returns nil once the last payment went out.
func payAll(ctx context.Context, p Payments, bens []string, amount decimal.Decimal, delay time.Duration, clock clockwork.Clock, source string, log logx.Logger) error {
	for i, b := range bens {
		start := clock.Now()
		err := p.Pay(ctx, b, amount)
		metrics.PaymentDuration.Observe(clock.Since(start).Seconds())
		if err != nil {
			metrics.PaymentsTotal.WithLabelValues(source, "error").Inc()
			log.Error("payment failed", logx.String("to", b), logx.Stringer("share", amount), logx.Err(err))
			return fmt.Errorf("pay %s: %w", b, err)
		}
		metrics.PaymentsTotal.WithLabelValues(source, "ok").Inc()
		if delay > 0 && i < len(bens)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(delay):
			}
		}
	}
	return nil
}
