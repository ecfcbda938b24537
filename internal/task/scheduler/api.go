package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "charitybot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// AddSchedule parses schedule and registers either a cron or interval job.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "15s", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	if ps.Every > 0 {
		return s.AddInterval(name, ps.Every, timeout, job)
	}
	return s.AddCron(name, ps.Cron, timeout, job)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("schedule %q: %w", name, err)
	}
	return s.addDef(name, spec, timeout, job)
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	return s.addDef(name, "@every "+every.String(), timeout, job)
}

func (s *Service) addDef(name, spec string, timeout time.Duration, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	s.Remove(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, stats: &runStats{}})
	if s.c == nil {
		// Not started yet: registered when Start() runs.
		return name, nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return name, err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	return name, nil
}

// AddOnce runs job once at the given time. Adding a name that is already
// pending replaces it, so re-arming pushes the deadline out.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	s.mu.Lock()
	_ = s.removeScheduleLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.once[name]; ok && old.timer != nil {
		old.timer.Stop()
	}
	// The version guards against a stale callback that fired while we held tmu.
	s.onceVer++
	d := &onceDef{at: at, timeout: timeout, job: job, ver: s.onceVer}
	s.once[name] = d

	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	ver := d.ver
	d.timer = s.clock.AfterFunc(delay, func() { s.fireOnce(name, ver) })
	s.log.Debug("one-shot armed", logx.String("name", name), logx.Duration("in", delay))
	return name, nil
}

// After is AddOnce relative to now.
func (s *Service) After(name string, d time.Duration, timeout time.Duration, job Job) (string, error) {
	return s.AddOnce(name, s.clock.Now().Add(d), timeout, job)
}

func (s *Service) fireOnce(name string, ver uint64) {
	s.tmu.Lock()
	d, ok := s.once[name]
	if !ok || d.ver != ver {
		s.tmu.Unlock()
		return
	}
	delete(s.once, name)
	s.tmu.Unlock()

	s.run(name, d.timeout, d.job, nil)
}

// Remove unschedules everything registered under name. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	if d, ok := s.once[name]; ok {
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters them from cron if running.
// Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, timeout, job, stats := d.name, d.timeout, d.job, d.stats
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() {
		s.run(name, timeout, job, stats)
	}))
	if err == nil {
		d.entryID = eid
	}
	return err
}

// run executes one job invocation under the service context.
func (s *Service) run(name string, timeout time.Duration, job Job, stats *runStats) {
	s.mu.Lock()
	base := s.runCtx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	if base.Err() != nil {
		return
	}
	ctx := base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}

	start := s.clock.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job(ctx)
	}()
	took := s.clock.Since(start)

	if stats != nil {
		stats.mu.Lock()
		stats.runs++
		stats.lastRun = start
		stats.lastTook = took
		if err != nil {
			stats.failures++
			stats.lastErr = err.Error()
		} else {
			stats.lastErr = ""
		}
		stats.mu.Unlock()
	}
	if err != nil {
		s.log.Warn("job failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Trace("job done", logx.String("name", name), logx.Duration("took", took))
}
