package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// envBindings maps environment variables onto config fields.
// Non-empty environment values override the file.
var envBindings = []struct {
	name string
	set  func(*Config, string)
}{
	{"MQTT_URL", func(c *Config, v string) { c.Bus.URL = v }},
	{"MQTT_TOPIC_USER", func(c *Config, v string) { c.Bus.Account = v }},
	{"REDIS_URL", func(c *Config, v string) {
		if c.Bus.Driver == "redis" && c.Bus.URL == "" {
			c.Bus.URL = v
		}
		if c.Storage.Driver == "redis" {
			c.Storage.URL = v
		}
	}},
	{"TIPBOT_URL", func(c *Config, v string) { c.Payment.URL = v }},
	{"TIPBOT_API_KEY", func(c *Config, v string) { c.Payment.APIKey = v }},
	{"MAX_XRP_VIA_TIP", func(c *Config, v string) { c.Payment.MaxPerCall = v }},
	{"TELEGRAM_TOKEN", func(c *Config, v string) { c.Social.TelegramToken = v }},
	{"SLACK_BOT_TOKEN", func(c *Config, v string) { c.Social.SlackToken = v }},
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		b.set(cfg, v)
	}
}
