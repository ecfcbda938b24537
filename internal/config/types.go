package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Bus selects the donation event source.
	Bus BusConfig `json:"bus"`

	Payment PaymentConfig `json:"payment"`
	Social  SocialConfig  `json:"social"`

	Splitter SplitterConfig `json:"splitter"`
	Poster   PosterConfig   `json:"poster"`
	Composer ComposerConfig `json:"composer"`

	Status    StatusConfig    `json:"status"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the durable queue store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./storage/charitybot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	URL         string `json:"url,omitempty"`          // redis
	Prefix      string `json:"prefix,omitempty"`       // redis
}

// BusConfig controls where donation events come from.
//
// Driver values:
//   - "mqtt": tip/received/<network>/<account> and deposit/<network>/<account>
//   - "redis": pub/sub channel carrying the same JSON payload
type BusConfig struct {
	Driver string `json:"driver"`

	// URL is the broker address (mqtt://host:port or redis://host:port/db).
	URL string `json:"url"`

	// Account is the bot's own account name on Network; it is the topic suffix.
	Account string `json:"account"`
	Network string `json:"network,omitempty"` // default "twitter"

	ClientID string `json:"client_id,omitempty"` // mqtt
	Channel  string `json:"channel,omitempty"`   // redis; default "charitybot:donations"

	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

// PaymentConfig configures the tip API client.
type PaymentConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`

	// MaxPerCall is the largest amount (whole units) sent in one call; larger payments are chunked.
	MaxPerCall string `json:"max_per_call,omitempty"` // default "20"
	// CallInterval spaces consecutive chunk calls. Go duration string.
	CallInterval string `json:"call_interval,omitempty"`
	Timeout      string `json:"timeout,omitempty"`

	Platform string `json:"platform,omitempty"`
	Model    string `json:"model,omitempty"`
}

// SocialConfig configures the announcement feed.
//
// Driver values: "telegram", "slack", "log".
type SocialConfig struct {
	Driver string `json:"driver"`

	TelegramToken string `json:"telegram_token,omitempty"`
	// TelegramChat is a numeric chat id or a public @channel name.
	TelegramChat string `json:"telegram_chat,omitempty"`

	SlackToken   string `json:"slack_token,omitempty"`
	SlackChannel string `json:"slack_channel,omitempty"`

	// Beneficiaries is the static list. If empty and the driver is slack,
	// members of SlackChannel (minus the bot) are used.
	Beneficiaries []string `json:"beneficiaries,omitempty"`
}

// SplitterConfig controls tip splitting. All durations are Go duration strings.
//
// Defaults:
//   - interval: "15s"
//   - pay_delay: "500ms"
//   - reconcile_delay: "120s"
//   - reconcile_schedule: "" (disabled); cron, "@every 1h", "30m" or "01:30"
//   - scale: 1000000
type SplitterConfig struct {
	Interval          string `json:"interval,omitempty"`
	PayDelay          string `json:"pay_delay,omitempty"`
	ReconcileDelay    string `json:"reconcile_delay,omitempty"`
	ReconcileSchedule string `json:"reconcile_schedule,omitempty"`
	Scale             int64  `json:"scale,omitempty"`
}

// PosterConfig controls the rate-limited post queue.
//
// Defaults: interval "30s", window "15m", quota 15.
type PosterConfig struct {
	Interval string `json:"interval,omitempty"`
	Window   string `json:"window,omitempty"`
	Quota    int    `json:"quota,omitempty"`
}

// ComposerConfig holds announcement texts. Hot-reloadable.
type ComposerConfig struct {
	Currency       string   `json:"currency,omitempty"` // default "XRP"
	Greetings      []string `json:"greetings,omitempty"`
	Hashtags       []string `json:"hashtags,omitempty"`
	IDOnlyNetworks []string `json:"id_only_networks,omitempty"` // default ["discord"]
	Seed           int64    `json:"seed,omitempty"`
}

// StatusConfig controls the health/status HTTP server.
//
// Security note: /debug/pprof is only mounted when Pprof is true; bind to localhost.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8080"
	Pprof   bool   `json:"pprof,omitempty"`
}

type SchedulerConfig struct {
	// Trigger timezone.
	Timezone string `json:"timezone,omitempty"`
}
