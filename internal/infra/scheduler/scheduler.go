package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/wakeup"
)

// DefaultInexactWindow is the batching window of tier C wake-ups.
const DefaultInexactWindow = time.Minute

// onceSchedule is a cron.Schedule that activates exactly once. cron never runs
// an entry whose next activation is the zero time.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// InexactTimer serves tier C. Each registration becomes a one-shot cron entry
// whose instant is rounded up to the batching window, so several reminders
// around the same minute share a single wake-up.
type InexactTimer struct {
	cronEngine *cron.Cron
	window     time.Duration
	now        func() time.Time
	log        *logrus.Entry

	mu      sync.Mutex
	handler wakeup.Handler
	ctx     context.Context
	seq     uint64
	entries map[string]inexactEntry
}

type inexactEntry struct {
	id  cron.EntryID
	seq uint64
	at  time.Time
}

func NewInexactTimer(window time.Duration, log *logrus.Entry) *InexactTimer {
	if window <= 0 {
		window = DefaultInexactWindow
	}
	return &InexactTimer{
		cronEngine: cron.New(cron.WithLocation(time.Local)),
		window:     window,
		now:        time.Now,
		log:        log.WithField("component", "inexact_timer"),
		ctx:        context.Background(),
		entries:    make(map[string]inexactEntry),
	}
}

// Register installs reg as a one-shot cron entry, replacing the slot's
// previous entry.
func (t *InexactTimer) Register(_ context.Context, reg wakeup.Registration) error {
	if reg.Tier != wakeup.TierInexact {
		return fmt.Errorf("%w: %s", wakeup.ErrTierUnsupported, reg.Tier)
	}

	at := t.batch(reg.At)
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[reg.Slot]; ok {
		t.cronEngine.Remove(e.id)
		delete(t.entries, reg.Slot)
	}

	t.seq++
	seq, slot, d := t.seq, reg.Slot, reg.Delivery
	id := t.cronEngine.Schedule(onceSchedule{at: at}, cron.FuncJob(func() {
		t.fire(slot, seq, d)
	}))
	t.entries[slot] = inexactEntry{id: id, seq: seq, at: at}

	t.log.WithFields(logrus.Fields{
		"slot":       reg.Slot,
		"requested":  reg.At.Format(time.RFC3339),
		"trigger_at": at.Format(time.RFC3339),
	}).Debug("Inexact wake-up registered")
	return nil
}

// Cancel removes the slot's entry, if any.
func (t *InexactTimer) Cancel(_ context.Context, slot string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[slot]; ok {
		t.cronEngine.Remove(e.id)
		delete(t.entries, slot)
		t.log.WithField("slot", slot).Debug("Inexact wake-up cancelled")
	}
	return nil
}

// Pending returns the batched trigger instant of slot, if any.
func (t *InexactTimer) Pending(slot string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[slot]
	return e.at, ok
}

// Start begins delivering due entries to handler.
func (t *InexactTimer) Start(ctx context.Context, handler wakeup.Handler) {
	t.log.Info("Starting inexact wake-up timer...")
	t.mu.Lock()
	t.handler = handler
	t.ctx = ctx
	t.mu.Unlock()
	t.cronEngine.Start()
}

// Stop stops the cron engine and waits for running deliveries.
func (t *InexactTimer) Stop() {
	t.log.Info("Stopping inexact wake-up timer...")
	ctx := t.cronEngine.Stop()
	<-ctx.Done()
	t.log.Info("Inexact wake-up timer gracefully stopped.")
}

func (t *InexactTimer) fire(slot string, seq uint64, d wakeup.Delivery) {
	t.mu.Lock()
	e, ok := t.entries[slot]
	if !ok || e.seq != seq {
		t.mu.Unlock()
		return
	}
	delete(t.entries, slot)
	handler, ctx := t.handler, t.ctx
	t.mu.Unlock()

	t.cronEngine.Remove(e.id)
	if handler != nil {
		handler(ctx, d)
	}
}

// batch rounds at up to the next window boundary, never into the past.
func (t *InexactTimer) batch(at time.Time) time.Time {
	rounded := at.Truncate(t.window)
	if rounded.Before(at) {
		rounded = rounded.Add(t.window)
	}
	if now := t.now(); !rounded.After(now) {
		rounded = now.Add(time.Second)
	}
	return rounded
}

var _ wakeup.Timer = (*InexactTimer)(nil)
