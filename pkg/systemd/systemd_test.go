package systemd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyMessages(t *testing.T) {
	var sent []string
	orig := notify
	notify = func(_ bool, state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}
	t.Cleanup(func() { notify = orig })

	_, err := Ready()
	require.NoError(t, err)
	_, _ = Status("halted: missing MQTT_URL")
	_, _ = Stopping()

	assert.Equal(t, []string{"READY=1", "STATUS=halted: missing MQTT_URL", "STOPPING=1"}, sent)
}

func TestWatchdogDisabledOutsideSystemd(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")
	assert.NoError(t, Watchdog(context.Background()))
}
