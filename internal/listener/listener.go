// Package listener subscribes to the donation event bus and hands decoded
// events to the splitter.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charitybot/internal/donation"
	logx "charitybot/pkg/logx"
)

// EnqueueFunc receives each valid event. *splitter.Splitter.Enqueue fits.
type EnqueueFunc func(ctx context.Context, ev donation.Event) error

// Listener blocks in Run until ctx is cancelled or the connection fails.
type Listener interface {
	Run(ctx context.Context) error
}

// Config selects and configures a bus driver.
type Config struct {
	Driver         string // mqtt | redis
	URL            string
	Account        string
	Network        string
	ClientID       string
	Channel        string
	ConnectTimeout time.Duration
}

// New builds the listener for cfg.Driver.
func New(cfg Config, enqueue EnqueueFunc, log logx.Logger) (Listener, error) {
	if enqueue == nil {
		return nil, errors.New("listener: enqueue func is required")
	}
	h := &handler{enqueue: enqueue, now: time.Now, log: log}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "mqtt":
		return newMQTT(cfg, h), nil
	case "redis":
		return newRedis(cfg, h)
	default:
		return nil, fmt.Errorf("listener: unknown driver %q", cfg.Driver)
	}
}

// TipTopic and DepositTopic are the MQTT topics for an account on a network.
func TipTopic(network, account string) string {
	return "tip/received/" + network + "/" + account
}

func DepositTopic(network, account string) string {
	return "deposit/" + network + "/" + account
}

// kindForTopic infers the event kind from the topic prefix.
func kindForTopic(topic string) donation.Kind {
	if strings.HasPrefix(topic, "deposit/") {
		return donation.KindDeposit
	}
	return donation.KindTip
}

type handler struct {
	enqueue EnqueueFunc
	now     func() time.Time
	log     logx.Logger
}

// handle decodes one payload. Invalid payloads are logged and skipped; the
// returned error is only for enqueue failures.
func (h *handler) handle(ctx context.Context, source string, fallback donation.Kind, payload []byte) error {
	ev, err := donation.Decode(payload, fallback, h.now())
	if err != nil {
		h.log.Warn("invalid donation payload", logx.String("source", source), logx.String("payload", string(payload)), logx.Err(err))
		return nil
	}
	h.log.Info("donation received",
		logx.String("source", source), logx.String("id", ev.ID), logx.String("type", string(ev.Kind)),
		logx.Stringer("amount", ev.Amount), logx.String("user", ev.User), logx.String("user_network", ev.UserNetwork))
	if err := h.enqueue(ctx, ev); err != nil {
		h.log.Error("enqueue failed", logx.String("id", ev.ID), logx.Err(err))
		return err
	}
	return nil
}
