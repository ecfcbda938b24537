package social

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	logx "charitybot/pkg/logx"
)

// LogPoster is a dry-run driver: posts are written to the log only.
// With MaxLen set it rejects longer posts like a real feed would.
type LogPoster struct {
	MaxLen int
	Log    logx.Logger

	mu   sync.Mutex
	last string
}

func (p *LogPoster) Send(_ context.Context, text string) error {
	if p.MaxLen > 0 && utf8.RuneCountInString(text) > p.MaxLen {
		return fmt.Errorf("%w: %d > %d", ErrTooLong, utf8.RuneCountInString(text), p.MaxLen)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == p.last {
		return ErrDuplicate
	}
	p.last = text
	p.Log.Info("post (dry run)", logx.String("text", text))
	return nil
}
