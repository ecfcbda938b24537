package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		if d.stats != nil {
			d.stats.mu.Lock()
			it.Runs = d.stats.runs
			it.Failures = d.stats.failures
			it.LastErr = d.stats.lastErr
			d.stats.mu.Unlock()
		}
		items = append(items, it)
	}

	s.tmu.Lock()
	once := make([]OnceInfo, 0, len(s.once))
	for name, d := range s.once {
		once = append(once, OnceInfo{Name: name, At: d.at})
	}
	s.tmu.Unlock()
	sort.Slice(once, func(i, j int) bool { return once[i].Name < once[j].Name })

	return Snapshot{
		Running:   c != nil,
		Timezone:  loc.String(),
		Schedules: items,
		Once:      once,
	}
}

// Pending reports whether a one-shot timer named name is armed.
func (s *Service) Pending(name string) bool {
	s.tmu.Lock()
	_, ok := s.once[name]
	s.tmu.Unlock()
	return ok
}
