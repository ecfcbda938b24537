package listener

import (
	"context"
	"fmt"

	"charitybot/internal/donation"
	logx "charitybot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "charitybot:donations"

type redisListener struct {
	cfg    Config
	h      *handler
	client *redis.Client
}

func newRedis(cfg Config, h *handler) (*redisListener, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("listener: redis url: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	return &redisListener{cfg: cfg, h: h, client: redis.NewClient(opt)}, nil
}

// Run subscribes to the channel and blocks until ctx is done or the
// subscription breaks. Payloads carry their own "type"; tip is assumed
// when it is missing.
func (l *redisListener) Run(ctx context.Context) error {
	ps := l.client.Subscribe(ctx, l.cfg.Channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", l.cfg.Channel, err)
	}
	l.h.log.Info("redis subscribed", logx.String("channel", l.cfg.Channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", l.cfg.Channel)
			}
			_ = l.h.handle(ctx, m.Channel, donation.KindTip, []byte(m.Payload))
		}
	}
}

func (l *redisListener) Close() error { return l.client.Close() }
