package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/wakeup"
)

// DefaultMaxSleep bounds every timer sleep so wall-clock jumps (NTP, DST,
// host suspend) are noticed within a minute.
const DefaultMaxSleep = 60 * time.Second

// ExactTimer is an in-process wake-up timer serving tiers A and B.
// A single goroutine sleeps until the earliest registration is due and hands
// it to the handler. Registrations live in memory only: a restart loses them,
// which is what the boot re-arm hook is for.
type ExactTimer struct {
	mu      sync.Mutex
	pending registrationHeap
	started bool
	stopped bool

	caps     wakeup.Capabilities
	maxSleep time.Duration
	now      func() time.Time
	poke     chan struct{}
	done     chan struct{}
	log      *logrus.Entry
}

// NewExactTimer creates a stopped timer; call Start to begin delivering.
func NewExactTimer(caps wakeup.Capabilities, maxSleep time.Duration, log *logrus.Entry) *ExactTimer {
	if maxSleep <= 0 {
		maxSleep = DefaultMaxSleep
	}
	return &ExactTimer{
		caps:     caps,
		maxSleep: maxSleep,
		now:      time.Now,
		poke:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		log:      log.WithField("component", "exact_timer"),
	}
}

// Register installs reg, replacing any registration of the same slot.
// TierExact needs the exact-alarm capability, TierExactBestEffort needs
// allow-while-idle support. TierInexact is not served here.
func (t *ExactTimer) Register(_ context.Context, reg wakeup.Registration) error {
	switch reg.Tier {
	case wakeup.TierExact:
		if !t.caps.CanScheduleExactAlarms() {
			return wakeup.ErrExactAlarmDenied
		}
	case wakeup.TierExactBestEffort:
		if !t.caps.SupportsAllowWhileIdle() {
			return fmt.Errorf("%w: allow-while-idle", wakeup.ErrTierUnsupported)
		}
	default:
		return fmt.Errorf("%w: %s", wakeup.ErrTierUnsupported, reg.Tier)
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return wakeup.ErrTimerStopped
	}
	heapRemoveBySlot(&t.pending, reg.Slot)
	heapPush(&t.pending, reg)
	t.mu.Unlock()

	t.wake()
	t.log.WithFields(logrus.Fields{
		"slot":       reg.Slot,
		"tier":       reg.Tier.String(),
		"trigger_at": reg.At.Format(time.RFC3339),
	}).Debug("Wake-up registered")
	return nil
}

// Cancel removes the registration of slot. It is a no-op for unknown slots.
func (t *ExactTimer) Cancel(_ context.Context, slot string) error {
	t.mu.Lock()
	removed := heapRemoveBySlot(&t.pending, slot)
	t.mu.Unlock()
	if removed {
		t.wake()
		t.log.WithField("slot", slot).Debug("Wake-up cancelled")
	}
	return nil
}

// Pending returns the registration of slot, if any.
func (t *ExactTimer) Pending(slot string) (wakeup.Registration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := heapIndexOf(t.pending, slot); i >= 0 {
		return t.pending[i], true
	}
	return wakeup.Registration{}, false
}

// Len returns the number of outstanding registrations.
func (t *ExactTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Len()
}

// Start runs the delivery loop until ctx is cancelled. Due registrations are
// handed to handler one at a time on the loop goroutine.
func (t *ExactTimer) Start(ctx context.Context, handler wakeup.Handler) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run(ctx, handler)
}

// Done is closed once the delivery loop has exited.
func (t *ExactTimer) Done() <-chan struct{} {
	return t.done
}

func (t *ExactTimer) wake() {
	select {
	case t.poke <- struct{}{}:
	default:
	}
}

func (t *ExactTimer) run(ctx context.Context, handler wakeup.Handler) {
	defer close(t.done)
	defer func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
	}()

	t.log.Info("Exact wake-up timer started")
	timer := time.NewTimer(t.nextSleep())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Exact wake-up timer stopped")
			return
		case <-t.poke:
		case <-timer.C:
			for _, reg := range t.popDue() {
				handler(ctx, reg.Delivery)
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.nextSleep())
	}
}

func (t *ExactTimer) popDue() []wakeup.Registration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var due []wakeup.Registration
	for t.pending.Len() > 0 && !t.pending[0].At.After(now) {
		due = append(due, heapPop(&t.pending))
	}
	return due
}

func (t *ExactTimer) nextSleep() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending.Len() == 0 {
		return t.maxSleep
	}
	d := t.pending[0].At.Sub(t.now())
	if d > t.maxSleep {
		d = t.maxSleep
	}
	if d < 0 {
		d = 0
	}
	return d
}

var _ wakeup.Timer = (*ExactTimer)(nil)
