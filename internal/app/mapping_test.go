package app

import (
	"testing"
	"time"

	"charitybot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestMapSplitterDefaults(t *testing.T) {
	s, err := mapSplitterConfig(defaults())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, s.Interval)
	assert.Equal(t, 500*time.Millisecond, s.PayDelay)
	assert.Equal(t, 120*time.Second, s.ReconcileDelay)
	assert.Empty(t, s.ReconcileSchedule)
	assert.EqualValues(t, config.DefaultScale, s.Scale)
}

func TestMapPosterDefaults(t *testing.T) {
	p, err := mapPosterConfig(defaults())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.Interval)
	assert.Equal(t, 15*time.Minute, p.Window)
	assert.Equal(t, 15, p.Quota)
}

func TestMapPaymentConfig(t *testing.T) {
	cfg := defaults()
	cfg.Payment.MaxPerCall = "7.5"
	cfg.Payment.CallInterval = "2s"
	p, err := mapPaymentConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "7.5", p.MaxPerCall.String())
	assert.Equal(t, 2*time.Second, p.CallInterval)
	assert.Equal(t, "twitter", p.Network)

	cfg.Payment.MaxPerCall = "lots"
	_, err = mapPaymentConfig(cfg)
	assert.Error(t, err)
}

func TestMapListenerConfig(t *testing.T) {
	cfg := defaults()
	cfg.Bus.Account = "charitybot"
	l := mapListenerConfig(cfg)
	assert.Equal(t, "mqtt", l.Driver)
	assert.Equal(t, "charitybot-charitybot", l.ClientID)
	assert.Equal(t, 30*time.Second, l.ConnectTimeout)
}

func TestMapComposerUsesAccountAndScale(t *testing.T) {
	cfg := defaults()
	cfg.Bus.Account = "charitybot"
	c := mapComposer(cfg)
	assert.Equal(t, "charitybot", c.Account)
	assert.Equal(t, "twitter", c.HomeNetwork)
	assert.Equal(t, "XRP", c.Currency)
	assert.NotEmpty(t, c.Greetings)
}
