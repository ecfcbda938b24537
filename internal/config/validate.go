package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"charitybot/internal/task/scheduler"
	logx "charitybot/pkg/logx"

	"github.com/shopspring/decimal"
)

// Validate checks values that can be wrong regardless of environment:
// unknown drivers, bad durations, bad numbers. It is used for startup and
// as the reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	add(oneOf("storage.driver", cfg.Storage.Driver, "file", "sqlite", "sqlite3", "redis", "memory", "none"))
	add(oneOf("bus.driver", cfg.Bus.Driver, "mqtt", "redis"))
	add(oneOf("social.driver", cfg.Social.Driver, "telegram", "slack", "log"))

	for _, d := range []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"bus.connect_timeout", cfg.Bus.ConnectTimeout},
		{"payment.call_interval", cfg.Payment.CallInterval},
		{"payment.timeout", cfg.Payment.Timeout},
		{"splitter.interval", cfg.Splitter.Interval},
		{"splitter.pay_delay", cfg.Splitter.PayDelay},
		{"splitter.reconcile_delay", cfg.Splitter.ReconcileDelay},
		{"poster.interval", cfg.Poster.Interval},
		{"poster.window", cfg.Poster.Window},
	} {
		_, err := ParseDurationField(d.path, d.raw)
		add(err)
	}

	if s := strings.TrimSpace(cfg.Splitter.ReconcileSchedule); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			add(fmt.Errorf("splitter.reconcile_schedule: %w", err))
		}
	}

	if s := strings.TrimSpace(cfg.Payment.MaxPerCall); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil {
			add(fmt.Errorf("payment.max_per_call: invalid amount %q: %w", s, err))
		} else if !v.IsPositive() {
			add(fmt.Errorf("payment.max_per_call: must be > 0"))
		}
	}
	if cfg.Splitter.Scale < 0 {
		add(fmt.Errorf("splitter.scale: must be > 0"))
	}
	if cfg.Poster.Quota < 0 {
		add(fmt.Errorf("poster.quota: must be > 0"))
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

func oneOf(path, v string, allowed ...string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %s)", path, v, strings.Join(allowed, ", "))
}

// Missing lists every required setting that is empty, named by the
// environment variable (or config key) an operator would set.
func Missing(cfg *Config) []string {
	if cfg == nil {
		return []string{"config"}
	}
	var out []string
	need := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}

	need(cfg.Bus.URL, busURLName(cfg.Bus.Driver))
	need(cfg.Bus.Account, "MQTT_TOPIC_USER")
	need(cfg.Payment.URL, "TIPBOT_URL")
	need(cfg.Payment.APIKey, "TIPBOT_API_KEY")

	switch strings.ToLower(strings.TrimSpace(cfg.Social.Driver)) {
	case "telegram":
		need(cfg.Social.TelegramToken, "TELEGRAM_TOKEN")
		need(cfg.Social.TelegramChat, "social.telegram_chat")
	case "slack":
		need(cfg.Social.SlackToken, "SLACK_BOT_TOKEN")
		need(cfg.Social.SlackChannel, "social.slack_channel")
	}
	if strings.EqualFold(cfg.Storage.Driver, "redis") {
		need(cfg.Storage.URL, "REDIS_URL")
	}
	return out
}

func busURLName(driver string) string {
	if strings.EqualFold(strings.TrimSpace(driver), "redis") {
		return "REDIS_URL"
	}
	return "MQTT_URL"
}

// RestartRequired returns the top-level sections that changed between old and
// next but are only read at startup. Logging and composer are applied live.
func RestartRequired(old, next *Config) []string {
	if old == nil || next == nil {
		return nil
	}
	var out []string
	ov := reflect.ValueOf(*old)
	nv := reflect.ValueOf(*next)
	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Name
		if name == "Logging" || name == "Composer" {
			continue
		}
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
			out = append(out, tag)
		}
	}
	return out
}
