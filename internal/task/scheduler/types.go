package scheduler

import (
	"context"
	"sync"
	"time"

	logx "charitybot/pkg/logx"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
}

// Job is one unit of scheduled work. The context is cancelled on Stop and
// carries the schedule's timeout, if any.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	stats   *runStats
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
	timer   clockwork.Timer
}

type runStats struct {
	mu       sync.Mutex
	runs     uint64
	failures uint64
	lastErr  string
	lastRun  time.Time
	lastTook time.Duration
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	clock clockwork.Clock

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	runCtx    context.Context
	runCancel context.CancelFunc

	tmu     sync.Mutex
	once    map[string]*onceDef
	onceVer uint64
}

type ScheduleInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	Next     time.Time     `json:"next,omitempty"`
	Prev     time.Time     `json:"prev,omitempty"`
	Runs     uint64        `json:"runs"`
	Failures uint64        `json:"failures"`
	LastErr  string        `json:"last_err,omitempty"`
}

type OnceInfo struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
	Once      []OnceInfo     `json:"once,omitempty"`
}
