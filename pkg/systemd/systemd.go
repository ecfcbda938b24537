// Package systemd sends sd_notify messages when the bot runs as a
// Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

func Ready() (bool, error) { return notify(false, daemon.SdNotifyReady) }

func Stopping() (bool, error) { return notify(false, daemon.SdNotifyStopping) }

func Status(msg string) (bool, error) { return notify(false, "STATUS="+msg) }

// Watchdog pings the systemd watchdog at half the configured interval until
// ctx is done. It returns immediately when no watchdog is configured.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, _ = notify(false, daemon.SdNotifyWatchdog)
		}
	}
}
