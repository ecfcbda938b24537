package app

import (
	"fmt"
	"strings"
	"time"

	"charitybot/internal/compose"
	"charitybot/internal/config"
	"charitybot/internal/listener"
	"charitybot/internal/payment"
	"charitybot/internal/poster"
	"charitybot/internal/splitter"
	"charitybot/internal/storage"
	logx "charitybot/pkg/logx"

	"github.com/shopspring/decimal"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapComposer(cfg *config.Config) compose.Composer {
	return compose.Composer{
		Account:        cfg.Bus.Account,
		HomeNetwork:    cfg.Bus.Network,
		Currency:       cfg.Composer.Currency,
		Scale:          cfg.Splitter.Scale,
		IDOnlyNetworks: cfg.Composer.IDOnlyNetworks,
		Greetings:      cfg.Composer.Greetings,
		Hashtags:       cfg.Composer.Hashtags,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, config.DefaultBusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		URL:         sc.URL,
		Prefix:      sc.Prefix,
	}, nil
}

func mapPaymentConfig(cfg *config.Config) (payment.Config, error) {
	pc := cfg.Payment
	maxPerCall, err := decimal.NewFromString(strings.TrimSpace(pc.MaxPerCall))
	if err != nil {
		return payment.Config{}, fmt.Errorf("payment.max_per_call: %w", err)
	}
	interval, err := config.ParseDurationOrDefault("payment.call_interval", pc.CallInterval, 0)
	if err != nil {
		return payment.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("payment.timeout", pc.Timeout, config.DefaultPaymentTimeout)
	if err != nil {
		return payment.Config{}, err
	}
	return payment.Config{
		URL:          pc.URL,
		APIKey:       pc.APIKey,
		Network:      cfg.Bus.Network,
		MaxPerCall:   maxPerCall,
		CallInterval: interval,
		Timeout:      timeout,
		Platform:     pc.Platform,
		Model:        pc.Model,
	}, nil
}

type splitterSettings struct {
	splitter.Config
	Interval          time.Duration
	ReconcileSchedule string
}

func mapSplitterConfig(cfg *config.Config) (splitterSettings, error) {
	sc := cfg.Splitter
	var (
		out splitterSettings
		err error
	)
	out.Scale = sc.Scale
	if out.Interval, err = config.ParseDurationOrDefault("splitter.interval", sc.Interval, config.DefaultSplitInterval); err != nil {
		return out, err
	}
	if out.PayDelay, err = config.ParseDurationOrDefault("splitter.pay_delay", sc.PayDelay, config.DefaultPayDelay); err != nil {
		return out, err
	}
	if out.ReconcileDelay, err = config.ParseDurationOrDefault("splitter.reconcile_delay", sc.ReconcileDelay, config.DefaultReconcileDelay); err != nil {
		return out, err
	}
	out.ReconcileSchedule = strings.TrimSpace(sc.ReconcileSchedule)
	return out, nil
}

type posterSettings struct {
	poster.Config
	Interval time.Duration
}

func mapPosterConfig(cfg *config.Config) (posterSettings, error) {
	pc := cfg.Poster
	var (
		out posterSettings
		err error
	)
	out.Quota = pc.Quota
	if out.Interval, err = config.ParseDurationOrDefault("poster.interval", pc.Interval, config.DefaultPostInterval); err != nil {
		return out, err
	}
	if out.Window, err = config.ParseDurationOrDefault("poster.window", pc.Window, config.DefaultPostWindow); err != nil {
		return out, err
	}
	return out, nil
}

func mapListenerConfig(cfg *config.Config) listener.Config {
	bc := cfg.Bus
	timeout, _ := config.ParseDurationOrDefault("bus.connect_timeout", bc.ConnectTimeout, config.DefaultConnectTimeout)
	clientID := bc.ClientID
	if clientID == "" {
		clientID = "charitybot-" + bc.Account
	}
	return listener.Config{
		Driver:         bc.Driver,
		URL:            bc.URL,
		Account:        bc.Account,
		Network:        bc.Network,
		ClientID:       clientID,
		Channel:        bc.Channel,
		ConnectTimeout: timeout,
	}
}
