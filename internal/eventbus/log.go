package eventbus

import (
	"context"
	"sort"

	logx "charitybot/pkg/logx"
)

// LogEvents writes every event to log at debug level until ctx is done.
func LogEvents(ctx context.Context, b Bus, log logx.Logger) error {
	ch, unsub := b.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if !log.Enabled(logx.LevelDebug) {
				continue
			}
			keys := make([]string, 0, len(e.Data))
			for k := range e.Data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fields := make([]logx.Field, 0, len(keys)+1)
			fields = append(fields, logx.String("event", e.Type))
			for _, k := range keys {
				fields = append(fields, logx.Any(k, e.Data[k]))
			}
			log.Debug("event", fields...)
		}
	}
}
