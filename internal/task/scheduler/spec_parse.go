package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed schedule setting: a cron expression or a fixed interval.
type Schedule struct {
	Cron  string
	Every time.Duration
}

// Spec is the expression registered with cron.
func (s Schedule) Spec() string {
	if s.Every > 0 {
		return "@every " + s.Every.String()
	}
	return s.Cron
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)

// ParseSchedule accepts a cron expression or descriptor ("0 * * * *",
// "@hourly", "@every 10m"), a Go duration ("90s") or an HH:MM interval
// ("01:30"). A "cron:" prefix forces cron parsing.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, errors.New("schedule required")
	}
	if len(s) >= 5 && strings.EqualFold(s[:5], "cron:") {
		expr := strings.TrimSpace(s[5:])
		if expr == "" {
			return Schedule{}, errors.New("cron expression required after 'cron:'")
		}
		return Schedule{Cron: expr}, nil
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return Schedule{Cron: s}, nil
	}

	var every time.Duration
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		every = time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute
	} else {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid schedule %q (want cron, HH:MM or a duration like '30m')", raw)
		}
		every = d
	}
	if every <= 0 {
		return Schedule{}, fmt.Errorf("schedule %q: interval must be > 0", raw)
	}
	return Schedule{Every: every}, nil
}
