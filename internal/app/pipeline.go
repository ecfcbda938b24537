package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"charitybot/internal/config"
	"charitybot/internal/listener"
	"charitybot/internal/payment"
	"charitybot/internal/poster"
	"charitybot/internal/social"
	"charitybot/internal/splitter"
	"charitybot/internal/storage"
	"charitybot/internal/task/scheduler"
	logx "charitybot/pkg/logx"
)

const (
	jobSplitTips = "split-tips"
	jobSendPosts = "send-posts"
	jobReconcile = "reconcile"
)

// startPipeline opens storage, checks the payment account, resolves the
// beneficiaries and starts the periodic ticks and the bus listener.
func (a *App) startPipeline(ctx context.Context, cfg *config.Config) error {
	log := a.log

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, log.Comp("storage"))
	if errors.Is(err, storage.ErrDisabled) {
		log.Comp("storage").Warn("storage disabled; queues are kept in memory only")
		store, err = storage.NewMemory(), nil
	}
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = store

	pc, err := mapPaymentConfig(cfg)
	if err != nil {
		return err
	}
	pay, err := payment.New(pc, log.Comp("payment"))
	if err != nil {
		return err
	}
	bal, err := pay.Activate(ctx)
	if err != nil {
		return fmt.Errorf("payment api not ready: %w", err)
	}
	log.Comp("payment").Info("payment api ready", logx.Stringer("balance", bal))

	feed, followers, err := a.openSocial(cfg)
	if err != nil {
		return err
	}
	bens, err := followers.ListFollowers(ctx)
	if err != nil {
		return fmt.Errorf("beneficiaries: %w", err)
	}
	if len(bens) == 0 {
		return splitter.ErrNoBeneficiaries
	}
	log.Info("beneficiaries loaded", logx.Int("count", len(bens)), logx.Any("beneficiaries", bens))

	splCfg, err := mapSplitterConfig(cfg)
	if err != nil {
		return err
	}
	postCfg, err := mapPosterConfig(cfg)
	if err != nil {
		return err
	}

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, a.clock, log.Comp("scheduler"))

	state, err := splitter.NewState(ctx, storage.Namespace(store, "splitter"), log.Comp("splitter"))
	if err != nil {
		return err
	}
	posts, err := poster.New(ctx, postCfg.Config, poster.Deps{
		Store:   storage.Namespace(store, "poster"),
		Poster:  feed,
		Greeter: a.composer,
		Clock:   a.clock,
		Bus:     a.bus,
		Log:     log.Comp("poster"),
	})
	if err != nil {
		return err
	}
	deps := splitter.Deps{
		State:         state,
		Payments:      pay,
		Beneficiaries: bens,
		Announcer:     &poster.Announcer{Composer: a.composer, Scheduler: posts},
		Timer:         a.sched,
		Clock:         a.clock,
		Bus:           a.bus,
	}
	deps.Log = log.Comp("reconciler")
	rec, err := splitter.NewReconciler(splCfg.Config, deps)
	if err != nil {
		return err
	}
	deps.Log = log.Comp("splitter")
	deps.Reconciler = rec
	spl, err := splitter.New(splCfg.Config, deps)
	if err != nil {
		return err
	}

	if _, err := a.sched.AddInterval(jobSplitTips, splCfg.Interval, 0, spl.ProcessNext); err != nil {
		return err
	}
	if _, err := a.sched.AddInterval(jobSendPosts, postCfg.Interval, 0, posts.Tick); err != nil {
		return err
	}
	if splCfg.ReconcileSchedule != "" {
		if _, err := a.sched.AddSchedule(jobReconcile, splCfg.ReconcileSchedule, 0, rec.Reconcile); err != nil {
			return err
		}
	}
	// Nothing to drain: check for a leftover balance once, as after a drain.
	if state.Len() == 0 && splCfg.ReconcileDelay > 0 {
		if _, err := a.sched.After(splitter.ReconcileJob, splCfg.ReconcileDelay, 0, rec.Reconcile); err != nil {
			return err
		}
	}
	a.sched.Start(ctx)

	l, err := listener.New(mapListenerConfig(cfg), spl.Enqueue, log.Comp("listener"))
	if err != nil {
		return err
	}
	if c, ok := l.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.sup.GoRestart("listener", time.Second, time.Minute, l.Run)

	if a.status != nil {
		a.status.Register("tips", func() any {
			sp, rc := state.Busy()
			return map[string]any{"queue": state.Snapshot(), "splitter_busy": sp, "reconciler_busy": rc}
		})
		a.status.Register("posts", func() any { return posts.Snapshot() })
		a.status.Register("scheduler", func() any { return a.sched.Snapshot() })
	}
	return nil
}

// openSocial returns the feed driver and the beneficiary source. A static
// beneficiary list takes precedence over channel members.
func (a *App) openSocial(cfg *config.Config) (social.Poster, social.FollowerLister, error) {
	sc := cfg.Social
	log := a.log.Comp("social")

	var (
		feed      social.Poster
		followers social.FollowerLister
	)
	switch sc.Driver {
	case "telegram":
		tg, err := social.NewTelegram(social.TelegramConfig{Token: sc.TelegramToken, Chat: sc.TelegramChat}, log)
		if err != nil {
			return nil, nil, err
		}
		feed = tg
	case "slack":
		sl, err := social.NewSlack(social.SlackConfig{Token: sc.SlackToken, Channel: sc.SlackChannel}, log)
		if err != nil {
			return nil, nil, err
		}
		feed, followers = sl, sl
	default:
		feed = &social.LogPoster{Log: log}
	}
	if len(sc.Beneficiaries) > 0 || followers == nil {
		followers = social.Static(sc.Beneficiaries)
	}
	return feed, followers, nil
}
