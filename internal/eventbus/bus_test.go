package eventbus

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	logx "charitybot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	defer unsubA()
	c, unsubC := b.Subscribe(4)

	b.Publish(Event{Type: TipQueued})
	b.Publish(Event{Type: TipSplit})

	e := <-a
	assert.Equal(t, TipQueued, e.Type)
	assert.False(t, e.Time.IsZero())
	assert.Equal(t, uint64(1), b.Dropped())

	assert.Equal(t, TipQueued, (<-c).Type)
	assert.Equal(t, TipSplit, (<-c).Type)

	unsubC()
	unsubC()
	_, ok := <-c
	assert.False(t, ok)
	b.Publish(Event{Type: PostSent})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestLogEvents(t *testing.T) {
	var buf syncBuffer
	log := logx.NewWriter(&buf, "debug")
	b := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = LogEvents(ctx, b, log)
		close(done)
	}()

	require.Eventually(t, func() bool {
		b.Publish(Event{Type: PostDropped, Data: map[string]any{"post_id": "p1"}})
		return strings.Contains(buf.String(), `"post_id":"p1"`)
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Contains(t, buf.String(), `"event":"post.dropped"`)
}
