package splitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"charitybot/internal/donation"
	"charitybot/internal/storage"
	"charitybot/internal/task/scheduler"
	logx "charitybot/pkg/logx"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payCall struct {
	to     string
	amount string
}

type fakePayments struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	balErr    error
	failTo    string
	calls     []payCall
	onBalance func()
	onPay     func(n int)
}

func (f *fakePayments) Balance(context.Context) (decimal.Decimal, error) {
	if f.onBalance != nil {
		f.onBalance()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balErr
}

func (f *fakePayments) Pay(_ context.Context, to string, amount decimal.Decimal) error {
	f.mu.Lock()
	f.calls = append(f.calls, payCall{to: to, amount: amount.String()})
	n := len(f.calls)
	f.mu.Unlock()
	if f.onPay != nil {
		f.onPay(n)
	}
	if to == f.failTo {
		return errors.New("tip rejected")
	}
	return nil
}

func (f *fakePayments) paid() []payCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payCall(nil), f.calls...)
}

type announcement struct {
	id    string
	share int64
	bens  []string
}

type fakeAnnouncer struct {
	mu  sync.Mutex
	got []announcement
}

func (f *fakeAnnouncer) Announce(_ context.Context, ev donation.Event, share int64, bens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, announcement{id: ev.ID, share: share, bens: bens})
	return nil
}

type fakeTimer struct {
	armed []string
	delay time.Duration
	job   scheduler.Job
}

func (f *fakeTimer) After(name string, d time.Duration, _ time.Duration, job scheduler.Job) (string, error) {
	f.armed = append(f.armed, name)
	f.delay = d
	f.job = job
	return name, nil
}

var bens = []string{"redcross", "unicef", "wwf", "msf"}

type fixture struct {
	store storage.Store
	state *State
	pay   *fakePayments
	ann   *fakeAnnouncer
	timer *fakeTimer
	sp    *Splitter
	rec   *Reconciler
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T, balance string, payDelay time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store: storage.NewMemory(),
		pay:   &fakePayments{balance: decimal.RequireFromString(balance)},
		ann:   &fakeAnnouncer{},
		timer: &fakeTimer{},
		clock: clockwork.NewFakeClock(),
	}
	var err error
	f.state, err = NewState(ctx, f.store, logx.Nop())
	require.NoError(t, err)

	cfg := Config{Scale: donation.DefaultScale, PayDelay: payDelay, ReconcileDelay: 120 * time.Second}
	deps := Deps{
		State:         f.state,
		Payments:      f.pay,
		Beneficiaries: bens,
		Announcer:     f.ann,
		Timer:         f.timer,
		Clock:         f.clock,
		Log:           logx.Nop(),
	}
	f.rec, err = NewReconciler(cfg, deps)
	require.NoError(t, err)
	deps.Reconciler = f.rec
	f.sp, err = New(cfg, deps)
	require.NoError(t, err)
	return f
}

func tip(id, amount string) donation.Event {
	return donation.Event{ID: id, Kind: donation.KindTip, Amount: decimal.RequireFromString(amount), User: "alice", Network: "twitter"}
}

func (f *fixture) persistedQueue(t *testing.T) []donation.Event {
	t.Helper()
	var q []donation.Event
	ok, err := f.store.Get(context.Background(), keyTipQueue, &q)
	require.NoError(t, err)
	require.True(t, ok)
	return q
}

func TestSplitTenFiveOverFour(t *testing.T) {
	f := newFixture(t, "100", 0)
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("t1", "10.5")))
	require.Len(t, f.persistedQueue(t), 1)

	require.NoError(t, f.sp.ProcessNext(ctx))

	assert.Equal(t, []payCall{
		{"redcross", "2.625"}, {"unicef", "2.625"}, {"wwf", "2.625"}, {"msf", "2.625"},
	}, f.pay.paid())
	require.Len(t, f.ann.got, 1)
	assert.Equal(t, int64(2_625_000), f.ann.got[0].share)
	assert.Empty(t, f.persistedQueue(t))
	assert.Equal(t, []string{ReconcileJob}, f.timer.armed)
	assert.Equal(t, 120*time.Second, f.timer.delay)

	sp, rc := f.state.Busy()
	assert.False(t, sp)
	assert.False(t, rc)
}

func TestTooSmallTipIsDropped(t *testing.T) {
	f := newFixture(t, "100", 0)
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("t1", "0.000003")))

	require.NoError(t, f.sp.ProcessNext(ctx))
	assert.Empty(t, f.pay.paid())
	assert.Empty(t, f.ann.got)
	assert.Empty(t, f.persistedQueue(t))
}

func TestInsufficientBalanceStillAnnounces(t *testing.T) {
	f := newFixture(t, "5", 0)
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("t1", "10.5")))

	require.NoError(t, f.sp.ProcessNext(ctx))
	assert.Empty(t, f.pay.paid())
	require.Len(t, f.ann.got, 1)
	assert.Equal(t, "t1", f.ann.got[0].id)
	assert.Equal(t, 0, f.state.Len())
}

func TestBalanceErrorKeepsEvent(t *testing.T) {
	f := newFixture(t, "100", 0)
	f.pay.balErr = errors.New("timeout")
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("t1", "1")))

	require.Error(t, f.sp.ProcessNext(ctx))
	assert.Equal(t, 1, f.state.Len())
	assert.Len(t, f.persistedQueue(t), 1)
	sp, _ := f.state.Busy()
	assert.False(t, sp, "flag is cleared on failure")

	f.pay.balErr = nil
	require.NoError(t, f.sp.ProcessNext(ctx))
	assert.Equal(t, 0, f.state.Len())
}

func TestPaymentFailureKeepsEventForRetry(t *testing.T) {
	f := newFixture(t, "100", 0)
	f.pay.failTo = "wwf"
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("t1", "4")))

	require.Error(t, f.sp.ProcessNext(ctx))
	assert.Len(t, f.pay.paid(), 3, "sequential: stops at the failing beneficiary")
	assert.Empty(t, f.ann.got)
	assert.Equal(t, "t1", f.persistedQueue(t)[0].ID)
	assert.Empty(t, f.timer.armed)
}

func TestQueueIsFIFOAndOneEventPerCall(t *testing.T) {
	f := newFixture(t, "100", 0)
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("a", "4")))
	require.NoError(t, f.sp.Enqueue(ctx, tip("b", "8")))

	require.NoError(t, f.sp.ProcessNext(ctx))
	require.Len(t, f.ann.got, 1)
	assert.Equal(t, "a", f.ann.got[0].id)
	assert.Empty(t, f.timer.armed, "queue not drained yet")

	require.NoError(t, f.sp.ProcessNext(ctx))
	assert.Equal(t, "b", f.ann.got[1].id)
	assert.Equal(t, int64(2_000_000), f.ann.got[1].share)
	assert.Len(t, f.timer.armed, 1)

	require.NoError(t, f.sp.ProcessNext(ctx), "empty queue is a no-op")
	assert.Len(t, f.pay.paid(), 8)
}

func TestQueueSurvivesRestart(t *testing.T) {
	f := newFixture(t, "100", 0)
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("a", "4")))
	require.NoError(t, f.sp.Enqueue(ctx, tip("b", "8")))

	restored, err := NewState(ctx, f.store, logx.Nop())
	require.NoError(t, err)
	q := restored.Snapshot()
	require.Len(t, q, 2)
	assert.Equal(t, "a", q[0].ID)
	assert.True(t, q[1].Amount.Equal(decimal.NewFromInt(8)))
}

func TestSplitterSkipsWhileReconcilerBusy(t *testing.T) {
	f := newFixture(t, "100", 0)
	ctx := context.Background()
	require.True(t, f.state.acquireIdle())
	require.NoError(t, f.sp.Enqueue(ctx, tip("a", "4")))

	require.NoError(t, f.sp.ProcessNext(ctx))
	assert.Empty(t, f.pay.paid())
	assert.Equal(t, 1, f.state.Len())

	f.state.release(roleReconciler)
	require.NoError(t, f.sp.ProcessNext(ctx))
	assert.Len(t, f.pay.paid(), 4)
}

func TestPayDelayBetweenCalls(t *testing.T) {
	f := newFixture(t, "100", 500*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("a", "4")))

	done := make(chan error, 1)
	go func() { done <- f.sp.ProcessNext(ctx) }()

	for i := 1; i < len(bens); i++ {
		bctx, cancel := context.WithTimeout(ctx, time.Second)
		require.NoError(t, f.clock.BlockUntilContext(bctx, 1))
		cancel()
		assert.Len(t, f.pay.paid(), i, "one payment per delay")
		f.clock.Advance(500 * time.Millisecond)
	}
	require.NoError(t, <-done, "no wait after the last payment")
	assert.Len(t, f.pay.paid(), len(bens))
	assert.Len(t, f.ann.got, 1)
}

func TestShutdownAfterLastPaymentConsumesTip(t *testing.T) {
	f := newFixture(t, "100", 500*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.sp.Enqueue(ctx, tip("a", "4")))
	f.pay.onPay = func(n int) {
		if n == len(bens) {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- f.sp.ProcessNext(ctx) }()
	for i := 1; i < len(bens); i++ {
		bctx, bcancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, f.clock.BlockUntilContext(bctx, 1))
		bcancel()
		f.clock.Advance(500 * time.Millisecond)
	}

	require.NoError(t, <-done)
	assert.Len(t, f.pay.paid(), len(bens))
	assert.Empty(t, f.persistedQueue(t), "paid tip must not be replayed")
	require.Len(t, f.ann.got, 1)
	assert.Equal(t, "a", f.ann.got[0].id)
}

func TestConcurrentProcessNextRunsOnce(t *testing.T) {
	f := newFixture(t, "100", 0)
	ctx := context.Background()
	require.NoError(t, f.sp.Enqueue(ctx, tip("a", "4")))

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.pay.onBalance = func() {
		entered <- struct{}{}
		<-block
	}
	done := make(chan error, 1)
	go func() { done <- f.sp.ProcessNext(ctx) }()
	<-entered

	f.pay.onBalance = nil
	require.NoError(t, f.sp.ProcessNext(ctx), "re-entry while busy is a no-op")
	close(block)
	require.NoError(t, <-done)
	assert.Len(t, f.pay.paid(), 4)
	assert.Len(t, f.ann.got, 1)
}

func TestNoBeneficiaries(t *testing.T) {
	_, err := New(Config{}, Deps{State: &State{}, Payments: &fakePayments{}, Announcer: &fakeAnnouncer{}})
	assert.ErrorIs(t, err, ErrNoBeneficiaries)
	_, err = NewReconciler(Config{}, Deps{State: &State{}, Payments: &fakePayments{}})
	assert.ErrorIs(t, err, ErrNoBeneficiaries)
}
