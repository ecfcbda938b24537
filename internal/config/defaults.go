package config

import "strings"

const (
	DefaultBusNetwork   = "twitter"
	DefaultRedisChannel = "charitybot:donations"
	DefaultMaxPerCall   = "20"
	DefaultCurrency     = "XRP"
	DefaultStatusAddr   = "127.0.0.1:8080"
	DefaultScale        = 1_000_000
	DefaultPostQuota    = 15
)

// DefaultGreetings are appended below the beneficiary lines, one picked per post.
var DefaultGreetings = []string{
	"Thank you for your donation!",
	"Can we have a retweet and spread the good word?",
	"What a wonderful way to start the day.",
	"Saving the world. A few XRP at a time.",
	"Good people do good things.",
	"Wow, what a great way to share some XRP!",
	"Time to make it rain!",
	"Giving is great, giving XRP is AMAZING!",
	"Thank you for being a Good Soul.",
	"Helping the world, one donation at a time.",
	"Your generosity is appreciated.",
	"Spreading the XRP love.",
}

// DefaultHashtags are alternative hashtag lines, one picked per post.
var DefaultHashtags = []string{
	"#XRPforGood #XRPCommunity #XRP",
	"#XRPforGood #XRP",
	"#XRPCommunity #XRPforGood",
}

// ApplyDefaults fills zero values. Durations are left as strings and
// resolved with ParseDurationOrDefault by their consumers.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.Console && !cfg.Logging.File.Enabled {
		cfg.Logging.Console = true
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Driver == "file" && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "./storage/charitybot"
	}
	if cfg.Storage.Driver == "sqlite" && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "./storage/charitybot.sqlite"
	}

	if strings.TrimSpace(cfg.Bus.Driver) == "" {
		cfg.Bus.Driver = "mqtt"
	}
	if strings.TrimSpace(cfg.Bus.Network) == "" {
		cfg.Bus.Network = DefaultBusNetwork
	}
	if cfg.Bus.Driver == "redis" && strings.TrimSpace(cfg.Bus.Channel) == "" {
		cfg.Bus.Channel = DefaultRedisChannel
	}

	if strings.TrimSpace(cfg.Payment.MaxPerCall) == "" {
		cfg.Payment.MaxPerCall = DefaultMaxPerCall
	}
	if strings.TrimSpace(cfg.Payment.Platform) == "" {
		cfg.Payment.Platform = cfg.Bus.Network
	}
	if strings.TrimSpace(cfg.Payment.Model) == "" {
		cfg.Payment.Model = "charitybot"
	}

	if strings.TrimSpace(cfg.Social.Driver) == "" {
		cfg.Social.Driver = "log"
	}

	if cfg.Splitter.Scale <= 0 {
		cfg.Splitter.Scale = DefaultScale
	}
	if cfg.Poster.Quota <= 0 {
		cfg.Poster.Quota = DefaultPostQuota
	}

	if strings.TrimSpace(cfg.Composer.Currency) == "" {
		cfg.Composer.Currency = DefaultCurrency
	}
	if len(cfg.Composer.Greetings) == 0 {
		cfg.Composer.Greetings = append([]string(nil), DefaultGreetings...)
	}
	if len(cfg.Composer.Hashtags) == 0 {
		cfg.Composer.Hashtags = append([]string(nil), DefaultHashtags...)
	}
	if cfg.Composer.IDOnlyNetworks == nil {
		cfg.Composer.IDOnlyNetworks = []string{"discord"}
	}

	if strings.TrimSpace(cfg.Status.Addr) == "" {
		cfg.Status.Addr = DefaultStatusAddr
	}
}
