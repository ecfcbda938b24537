package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go("boom", func(context.Context) error { panic("bad") })

	require.NoError(t, waitStopped(t, s, "boom"))
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "boom: panic: bad")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].Panics)
	assert.False(t, snap[0].Running)
}

func TestGoRestartBacksOff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(context.Background(), WithClock(clock))

	var runs atomic.Int32
	s.GoRestart("listener", time.Second, 4*time.Second, func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("broker down")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.EqualValues(t, 1, runs.Load())
	clock.Advance(time.Second)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.EqualValues(t, 2, runs.Load())
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, 5*time.Millisecond)

	require.Error(t, s.Stop(context.Background()), "first error is reported")
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].Restarts)
	assert.Contains(t, snap[0].LastErr, "broker down")
}

func TestCleanExitStopsRestartLoop(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("once", 0, 0, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, s.Stop(context.Background()))
	assert.EqualValues(t, 1, runs.Load())
	assert.NoError(t, s.Err())
}

func waitStopped(t *testing.T, s *Supervisor, name string) error {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, st := range s.Snapshot() {
			if st.Name == name && !st.Running {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return nil
}
