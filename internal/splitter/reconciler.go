package splitter

import (
	"context"
	"errors"
	"fmt"

	"charitybot/internal/donation"
	"charitybot/internal/eventbus"
	"charitybot/internal/metrics"
	logx "charitybot/pkg/logx"

	"github.com/jonboulle/clockwork"
)

// Reconciler forwards leftover balance when it divides evenly among the beneficiaries.
type Reconciler struct {
	cfg   Config
	state *State
	pay   Payments
	bens  []string
	clock clockwork.Clock
	bus   eventbus.Bus
	log   logx.Logger
}

func NewReconciler(cfg Config, d Deps) (*Reconciler, error) {
	if len(d.Beneficiaries) == 0 {
		return nil, ErrNoBeneficiaries
	}
	if d.State == nil || d.Payments == nil {
		return nil, errors.New("reconciler: state and payments are required")
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
	return &Reconciler{
		cfg:   cfg,
		state: d.State,
		pay:   d.Payments,
		bens:  append([]string(nil), d.Beneficiaries...),
		clock: d.Clock,
		bus:   d.Bus,
		log:   d.Log,
	}, nil
}

// Reconcile pays out the whole balance if it splits evenly. It only runs
// with an empty tip queue and an idle splitter, and never retries.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if !r.state.acquireIdle() {
		r.log.Debug("reconcile skipped; tips pending or busy")
		metrics.ReconcileRunsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	defer r.state.release(roleReconciler)

	balance, err := r.pay.Balance(ctx)
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("balance: %w", err)
	}
	remaining, exact := donation.ExactMinor(balance, r.cfg.Scale)
	n := int64(len(r.bens))
	switch {
	case remaining <= 0 && exact:
		r.log.Debug("no balance to split")
		metrics.ReconcileRunsTotal.WithLabelValues("empty").Inc()
		return nil
	case !exact || remaining <= 0 || remaining%n != 0:
		r.log.Debug("balance does not split evenly", logx.Stringer("balance", balance), logx.Int("beneficiaries", len(r.bens)))
		metrics.ReconcileRunsTotal.WithLabelValues("indivisible").Inc()
		return nil
	}

	// A tip may have arrived during the balance read; it takes precedence.
	if r.state.Len() > 0 {
		r.log.Info("not splitting remaining balance; new tip arrived")
		metrics.ReconcileRunsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	amount := donation.FromMinor(remaining/n, r.cfg.Scale)
	log := r.log.With(logx.Stringer("balance", balance), logx.Stringer("share", amount))
	log.Info("splitting remaining balance")
	start := r.clock.Now()
	if err := payAll(ctx, r.pay, r.bens, amount, r.cfg.PayDelay, r.clock, "reconcile", log); err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("failed").Inc()
		return err
	}
	log.Info("remaining balance split", logx.Duration("took", r.clock.Since(start)))
	metrics.ReconcileRunsTotal.WithLabelValues("paid").Inc()
	r.bus.Publish(eventbus.Event{Type: eventbus.ReconcileDone, Data: map[string]any{"share": amount.String()}})
	return nil
}
