package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakflow_reminder/internal/domain/wakeup"
)

func nullLog() *logrus.Entry {
	l, _ := logtest.NewNullLogger()
	return logrus.NewEntry(l)
}

type recorder struct {
	mu  sync.Mutex
	got []wakeup.Delivery
}

func (r *recorder) handle(_ context.Context, d wakeup.Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d)
}

func (r *recorder) deliveries() []wakeup.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wakeup.Delivery(nil), r.got...)
}

func reg(slot string, at time.Time, tier wakeup.Tier) wakeup.Registration {
	return wakeup.Registration{
		Slot:     slot,
		At:       at,
		Tier:     tier,
		Delivery: wakeup.Delivery{Identity: slot, ScheduledFor: at, Tier: tier},
	}
}

func TestHeapOrdersByInstant(t *testing.T) {
	h := &registrationHeap{}
	now := time.Now()
	heapPush(h, reg("c", now.Add(3*time.Hour), wakeup.TierExact))
	heapPush(h, reg("a", now.Add(1*time.Hour), wakeup.TierExact))
	heapPush(h, reg("b", now.Add(2*time.Hour), wakeup.TierExact))

	assert.Equal(t, "a", heapPop(h).Slot)
	assert.Equal(t, "b", heapPop(h).Slot)
	assert.Equal(t, "c", heapPop(h).Slot)
}

func TestHeapRemoveBySlot(t *testing.T) {
	h := &registrationHeap{}
	now := time.Now()
	heapPush(h, reg("a", now.Add(time.Hour), wakeup.TierExact))
	heapPush(h, reg("b", now.Add(2*time.Hour), wakeup.TierExact))

	assert.True(t, heapRemoveBySlot(h, "a"))
	assert.False(t, heapRemoveBySlot(h, "a"))
	require.Equal(t, 1, h.Len())
	assert.Equal(t, "b", (*h)[0].Slot)
}

func TestExactTimer_FiresDueRegistration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	timer := NewExactTimer(NewRuntimeCapabilities(true, true), time.Second, nullLog())
	timer.Start(ctx, rec.handle)

	require.NoError(t, timer.Register(ctx, reg("alice", time.Now().Add(50*time.Millisecond), wakeup.TierExact)))

	require.Eventually(t, func() bool { return len(rec.deliveries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "alice", rec.deliveries()[0].Identity)
	assert.Equal(t, 0, timer.Len())
}

func TestExactTimer_SameSlotReplaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	timer := NewExactTimer(NewRuntimeCapabilities(true, true), time.Second, nullLog())
	timer.Start(ctx, rec.handle)

	first := time.Now().Add(50 * time.Millisecond)
	second := time.Now().Add(120 * time.Millisecond)
	require.NoError(t, timer.Register(ctx, reg("alice", first, wakeup.TierExact)))
	require.NoError(t, timer.Register(ctx, reg("alice", second, wakeup.TierExactBestEffort)))
	assert.Equal(t, 1, timer.Len())

	require.Eventually(t, func() bool { return len(rec.deliveries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.True(t, second.Equal(got[0].ScheduledFor))
}

func TestExactTimer_CancelBeforeFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	timer := NewExactTimer(NewRuntimeCapabilities(true, true), time.Second, nullLog())
	timer.Start(ctx, rec.handle)

	require.NoError(t, timer.Register(ctx, reg("alice", time.Now().Add(100*time.Millisecond), wakeup.TierExact)))
	require.NoError(t, timer.Cancel(ctx, "alice"))
	require.NoError(t, timer.Cancel(ctx, "alice"), "cancel is idempotent")

	time.Sleep(250 * time.Millisecond)
	assert.Empty(t, rec.deliveries())
}

func TestExactTimer_RejectsTiersWithoutCapability(t *testing.T) {
	caps := NewRuntimeCapabilities(false, false)
	timer := NewExactTimer(caps, time.Second, nullLog())
	at := time.Now().Add(time.Hour)

	err := timer.Register(context.Background(), reg("a", at, wakeup.TierExact))
	assert.True(t, errors.Is(err, wakeup.ErrExactAlarmDenied))

	err = timer.Register(context.Background(), reg("a", at, wakeup.TierExactBestEffort))
	assert.True(t, errors.Is(err, wakeup.ErrTierUnsupported))

	err = timer.Register(context.Background(), reg("a", at, wakeup.TierInexact))
	assert.True(t, errors.Is(err, wakeup.ErrTierUnsupported))

	caps.SetExactAlarms(true)
	assert.NoError(t, timer.Register(context.Background(), reg("a", at, wakeup.TierExact)))
}

func TestExactTimer_SleepIsCapped(t *testing.T) {
	timer := NewExactTimer(NewRuntimeCapabilities(true, true), 5*time.Second, nullLog())
	assert.Equal(t, 5*time.Second, timer.nextSleep(), "idle timer still wakes up")

	require.NoError(t, timer.Register(context.Background(), reg("a", time.Now().Add(24*time.Hour), wakeup.TierExact)))
	assert.Equal(t, 5*time.Second, timer.nextSleep())

	require.NoError(t, timer.Register(context.Background(), reg("b", time.Now().Add(-time.Minute), wakeup.TierExact)))
	assert.Equal(t, time.Duration(0), timer.nextSleep())
}

func TestExactTimer_RejectsAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	timer := NewExactTimer(NewRuntimeCapabilities(true, true), time.Second, nullLog())
	timer.Start(ctx, func(context.Context, wakeup.Delivery) {})
	cancel()
	<-timer.Done()

	err := timer.Register(context.Background(), reg("a", time.Now().Add(time.Hour), wakeup.TierExact))
	assert.True(t, errors.Is(err, wakeup.ErrTimerStopped))
}
