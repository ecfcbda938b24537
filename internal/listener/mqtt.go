package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "charitybot/pkg/logx"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mqttListener struct {
	cfg    Config
	h      *handler
	topics []string
	// factory is swapped in tests.
	factory func(*mqtt.ClientOptions) mqtt.Client
}

func newMQTT(cfg Config, h *handler) *mqttListener {
	if cfg.Network == "" {
		cfg.Network = "twitter"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &mqttListener{
		cfg:     cfg,
		h:       h,
		topics:  []string{TipTopic(cfg.Network, cfg.Account), DepositTopic(cfg.Network, cfg.Account)},
		factory: mqtt.NewClient,
	}
}

// Run connects, subscribes on every (re)connect and blocks until ctx is done
// or the connection is lost for good.
func (l *mqttListener) Run(ctx context.Context) error {
	lost := make(chan error, 1)
	log := l.h.log

	opts := mqtt.NewClientOptions().
		AddBroker(l.cfg.URL).
		SetClientID(l.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(l.cfg.ConnectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			for _, topic := range l.topics {
				kind := kindForTopic(topic)
				tok := c.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
					_ = l.h.handle(ctx, m.Topic(), kind, m.Payload())
				})
				if !tok.WaitTimeout(l.cfg.ConnectTimeout) || tok.Error() != nil {
					err := tok.Error()
					if err == nil {
						err = errors.New("subscribe timeout")
					}
					log.Error("mqtt subscribe failed", logx.String("topic", topic), logx.Err(err))
					select {
					case lost <- fmt.Errorf("subscribe %s: %w", topic, err):
					default:
					}
					return
				}
				log.Info("mqtt subscribed", logx.String("topic", topic))
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost; reconnecting", logx.Err(err))
		})

	client := l.factory(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(l.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect %s: timeout after %s", l.cfg.URL, l.cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", l.cfg.URL, err)
	}
	log.Info("mqtt connected", logx.String("broker", l.cfg.URL))
	defer client.Disconnect(250)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-lost:
		return err
	}
}
