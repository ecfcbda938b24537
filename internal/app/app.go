package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"charitybot/internal/compose"
	"charitybot/internal/config"
	"charitybot/internal/eventbus"
	"charitybot/internal/metrics"
	"charitybot/internal/runtime/supervisor"
	"charitybot/internal/status"
	"charitybot/internal/storage"
	"charitybot/internal/task/scheduler"
	logx "charitybot/pkg/logx"
	"charitybot/pkg/systemd"

	"github.com/jonboulle/clockwork"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type App struct {
	cfgm  *config.ConfigManager
	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	clock clockwork.Clock

	status *status.Server
	sup    *supervisor.Supervisor

	// Set once the pipeline is running; nil in halt mode.
	store    storage.Store
	sched    *scheduler.Service
	closers  []io.Closer
	composer *compose.Live

	mu     sync.Mutex
	halted string
}

type Option func(*App)

// WithClock replaces the wall clock used by the scheduler, splitter and poster.
func WithClock(c clockwork.Clock) Option { return func(a *App) { a.clock = c } }

// WithEnvLookup replaces os.LookupEnv for config overrides.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(a *App) { a.cfgm.SetEnvLookup(fn) }
}

// New loads the configuration and sets up logging. A config file that does
// not parse or validate is an error; missing secrets are not (see Start).
func New(cfgPath string, opts ...Option) (*App, error) {
	a := &App{
		cfgm:  config.NewConfigManager(cfgPath),
		bus:   eventbus.New(),
		clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(a)
	}

	cfg, err := a.cfgm.Parse()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	a.cfgm.Commit(cfg)

	a.logs, a.log = logx.New(mapLogging(cfg))
	a.composer = compose.NewLive(mapComposer(cfg), cfg.Composer.Seed)
	if cfg.Status.Enabled {
		a.status = status.New(status.Config{Addr: cfg.Status.Addr, Pprof: cfg.Status.Pprof}, a.log.Comp("status"))
	}
	metrics.BuildInfo.WithLabelValues(Version).Set(1)
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Status returns the HTTP status server, or nil when disabled.
func (a *App) Status() *status.Server { return a.status }

// Done is closed when the app context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Halted returns the halt reason, or "" while the bot is operating.
func (a *App) Halted() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}

// Start brings up the ambient services, then the donation pipeline. If a
// required setting is missing or a startup call fails, the bot halts: it
// stops interacting with external services but keeps running so /healthz
// can report why.
func (a *App) Start(ctx context.Context) error {
	log := a.log.Comp("app")
	a.sup = supervisor.New(ctx, supervisor.WithLogger(log), supervisor.WithClock(a.clock))

	a.cfgm.SetLogger(a.log.Comp("config"))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return config.Validate(cfg) })
	if a.cfgm.Path() != "" {
		a.sup.GoRestart("config.watch", time.Second, time.Minute, a.cfgm.Watch)
	}
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("eventbus.log", func(c context.Context) error { return eventbus.LogEvents(c, a.bus, a.log.Comp("events")) })
	a.sup.Go("systemd.watchdog", systemd.Watchdog)
	if a.status != nil {
		a.status.Register("supervisor", func() any { return a.sup.Snapshot() })
		a.sup.GoRestart("status.http", time.Second, 30*time.Second, a.status.Run)
	}

	cfg := a.cfgm.Get()
	if missing := config.Missing(cfg); len(missing) > 0 {
		a.halt("missing settings: " + strings.Join(missing, ", "))
		return nil
	}
	if err := a.startPipeline(a.sup.Context(), cfg); err != nil {
		a.halt(err.Error())
		return nil
	}

	_, _ = systemd.Ready()
	log.Info("charitybot started", logx.String("version", Version))
	return nil
}

func (a *App) halt(reason string) {
	a.mu.Lock()
	a.halted = reason
	a.mu.Unlock()

	a.log.Comp("app").Error("bot halted", logx.String("reason", reason))
	metrics.Halted.Set(1)
	if a.status != nil {
		a.status.SetHalted(reason)
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.BotHalted, Data: map[string]any{"reason": reason}})
	_, _ = systemd.Ready()
	_, _ = systemd.Status("halted: " + reason)
}

// Stop shuts down timers first, then supervised loops, then storage.
func (a *App) Stop(ctx context.Context) error {
	_, _ = systemd.Stopping()
	log := a.log.Comp("app")

	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info("charitybot stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// reloadLoop applies hot-reloadable sections and warns about the rest.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	log := a.log.Comp("config")
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			a.logs.Apply(mapLogging(next))
			a.composer.Update(mapComposer(next))
			if changed := config.RestartRequired(last, next); len(changed) > 0 {
				log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(changed, ",")))
			}
			last = next
		}
	}
}
