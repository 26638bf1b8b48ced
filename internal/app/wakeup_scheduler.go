// internal/app/wakeup_scheduler.go
package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/reminder"
	"peakflow_reminder/internal/domain/wakeup"
)

// DefaultImmediateWindow is how close to now an occurrence must be to be
// fired synchronously instead of through a timer.
const DefaultImmediateWindow = 1500 * time.Millisecond

// AdvisoryImprecise is surfaced while exact delivery cannot be guaranteed.
const AdvisoryImprecise = "exact delivery may be imprecise"

// Outcome reports what a scheduling call did. Scheduling never fails from
// the caller's point of view; Registered=false with Immediate=false means
// every tier refused and only the log knows why.
type Outcome struct {
	Identity   string
	TriggerAt  time.Time
	Tier       wakeup.Tier
	Registered bool
	Immediate  bool
	Skipped    bool // disabled config or superseded delivery
	Advisory   string
}

type slotState struct {
	epoch    uint64
	inFlight int
	pending  *wakeup.Registration
	advisory string
}

// WakeupScheduler turns a reminder config into exactly one outstanding
// wake-up registration per identity.
//
// Every Schedule and Cancel bumps the identity's epoch. Deliveries and
// re-arms carrying an older epoch are dropped, and Cancel waits for a
// delivery already in progress, so once Cancel returns nothing fires.
type WakeupScheduler struct {
	strategies      []CapabilityStrategy
	caps            wakeup.Capabilities
	now             func() time.Time
	location        func() *time.Location
	immediateWindow time.Duration
	log             *logrus.Entry

	// opMu serialises registration changes; mu guards slots and handler.
	opMu    sync.Mutex
	mu      sync.Mutex
	drained *sync.Cond
	slots   map[string]*slotState
	handler wakeup.Handler
}

type SchedulerOption func(*WakeupScheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *WakeupScheduler) { s.now = now }
}

// WithLocation sets the timezone source. It is called on every schedule so a
// timezone change is picked up by the next computation.
func WithLocation(loc func() *time.Location) SchedulerOption {
	return func(s *WakeupScheduler) { s.location = loc }
}

func WithImmediateWindow(d time.Duration) SchedulerOption {
	return func(s *WakeupScheduler) { s.immediateWindow = d }
}

func NewWakeupScheduler(strategies []CapabilityStrategy, caps wakeup.Capabilities, log *logrus.Entry, opts ...SchedulerOption) *WakeupScheduler {
	s := &WakeupScheduler{
		strategies:      strategies,
		caps:            caps,
		now:             time.Now,
		location:        func() *time.Location { return time.Local },
		immediateWindow: DefaultImmediateWindow,
		log:             log.WithField("component", "wakeup_scheduler"),
		slots:           make(map[string]*slotState),
	}
	s.drained = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFireHandler installs the callback run for every accepted delivery.
func (s *WakeupScheduler) SetFireHandler(h wakeup.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Schedule arms the first occurrence of cfg for identity, replacing whatever
// was armed before. A disabled config cancels instead.
func (s *WakeupScheduler) Schedule(ctx context.Context, identity string, cfg reminder.Config) Outcome {
	key := reminder.Key(identity)
	if !cfg.Enabled {
		s.Cancel(ctx, key)
		return Outcome{Identity: key, Skipped: true}
	}

	s.opMu.Lock()
	loc := s.loc()
	now := s.now()
	at := reminder.FirstOccurrence(now, cfg.Hour, cfg.Minute, cfg.Frequency, loc)

	s.mu.Lock()
	st := s.slot(key)
	st.epoch++
	epoch := st.epoch
	s.mu.Unlock()

	d := wakeup.Delivery{
		Identity:     key,
		TargetValue:  cfg.TargetValue,
		ScheduledFor: at,
		AnchorDay:    now.In(loc).Day(),
		Hour:         cfg.Hour,
		Minute:       cfg.Minute,
		Frequency:    cfg.Frequency,
		Epoch:        epoch,
	}
	return s.arm(ctx, now, d)
}

// ScheduleNext arms the occurrence following delivery d, stepping from the
// instant d was scheduled for rather than from now. It does nothing when d
// has been superseded by a later Schedule or Cancel.
func (s *WakeupScheduler) ScheduleNext(ctx context.Context, d wakeup.Delivery, cfg reminder.Config) Outcome {
	key := reminder.Key(d.Identity)
	if !cfg.Enabled {
		return Outcome{Identity: key, Skipped: true}
	}

	s.opMu.Lock()
	if !s.current(key, d.Epoch) {
		s.opMu.Unlock()
		s.log.WithField("identity", key).Debug("Delivery superseded, not re-arming")
		return Outcome{Identity: key, Skipped: true}
	}

	now := s.now()
	at := reminder.NextAfter(d.ScheduledFor, now, cfg.Hour, cfg.Minute, cfg.Frequency, d.AnchorDay, s.loc())

	next := d
	next.Identity = key
	next.TargetValue = cfg.TargetValue
	next.ScheduledFor = at
	next.Hour, next.Minute, next.Frequency = cfg.Hour, cfg.Minute, cfg.Frequency
	next.Immediate = false
	return s.arm(ctx, now, next)
}

// arm must be called with opMu held; it releases it.
func (s *WakeupScheduler) arm(ctx context.Context, now time.Time, d wakeup.Delivery) Outcome {
	key := d.Identity
	out := Outcome{Identity: key, TriggerAt: d.ScheduledFor}
	logEntry := s.log.WithFields(logrus.Fields{
		"identity":   key,
		"trigger_at": d.ScheduledFor.Format(time.RFC3339),
	})

	// at most one outstanding registration per identity
	for _, st := range s.strategies {
		st.Cancel(ctx, key)
	}
	s.setPending(key, nil, "")

	if d.ScheduledFor.Sub(now) <= s.immediateWindow {
		s.opMu.Unlock()
		logEntry.Info("Occurrence is due now, firing immediately")
		d.Immediate = true
		out.Immediate = true
		s.Deliver(ctx, d)
		return out
	}
	defer s.opMu.Unlock()

	for _, st := range s.strategies {
		reg := wakeup.Registration{Slot: key, At: d.ScheduledFor, Tier: st.Tier(), Delivery: d}
		reg.Delivery.Tier = st.Tier()
		if !st.TryRegister(ctx, reg) {
			continue
		}

		out.Registered = true
		out.Tier = st.Tier()
		if st.Tier() != wakeup.TierExact || !s.caps.CanScheduleExactAlarms() {
			out.Advisory = AdvisoryImprecise
		}
		s.setPending(key, &reg, out.Advisory)
		logEntry.WithField("tier", out.Tier.String()).Info("Reminder armed")
		return out
	}

	out.Advisory = AdvisoryImprecise
	s.setPending(key, nil, out.Advisory)
	logEntry.Error("Every wake-up tier refused the registration; reminder is not armed")
	return out
}

// Cancel removes the identity's registration. It is idempotent and returns
// only after any delivery already running for the identity has finished, so
// it must not be called from inside the fire handler of the same identity.
func (s *WakeupScheduler) Cancel(ctx context.Context, identity string) {
	key := reminder.Key(identity)

	s.mu.Lock()
	st := s.slot(key)
	st.epoch++
	epoch := st.epoch
	for st.inFlight > 0 {
		s.drained.Wait()
	}
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if !s.current(key, epoch) {
		// a later Schedule already replaced the registration
		return
	}
	for _, strategy := range s.strategies {
		strategy.Cancel(ctx, key)
	}
	s.setPending(key, nil, "")
	s.log.WithField("identity", key).Info("Reminder cancelled")
}

// Deliver is the timer callback. Superseded deliveries are dropped.
func (s *WakeupScheduler) Deliver(ctx context.Context, d wakeup.Delivery) {
	key := reminder.Key(d.Identity)

	s.mu.Lock()
	st := s.slot(key)
	if d.Epoch != st.epoch {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"identity": key,
			"epoch":    d.Epoch,
		}).Debug("Dropping superseded delivery")
		return
	}
	if st.pending != nil && st.pending.At.Equal(d.ScheduledFor) {
		st.pending = nil
	}
	handler := s.handler
	st.inFlight++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		st.inFlight--
		s.drained.Broadcast()
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.log.WithField("identity", key).Errorf("Fire handler panicked: %v", r)
		}
	}()

	if handler == nil {
		s.log.WithField("identity", key).Warn("No fire handler installed, delivery ignored")
		return
	}
	handler(ctx, d)
}

// Pending returns the outstanding registration of identity, if any.
func (s *WakeupScheduler) Pending(identity string) (wakeup.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.slots[reminder.Key(identity)]
	if !ok || st.pending == nil {
		return wakeup.Registration{}, false
	}
	return *st.pending, true
}

// Advisory returns the user-visible advisory for identity, empty when exact
// delivery is expected. Revoking the exact-alarm capability raises it
// immediately, before the next re-arm.
func (s *WakeupScheduler) Advisory(identity string) string {
	if !s.caps.CanScheduleExactAlarms() {
		return AdvisoryImprecise
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.slots[reminder.Key(identity)]; ok {
		return st.advisory
	}
	return ""
}

// NextOccurrence previews the first trigger instant for cfg without touching
// any registration.
func (s *WakeupScheduler) NextOccurrence(cfg reminder.Config) time.Time {
	return reminder.FirstOccurrence(s.now(), cfg.Hour, cfg.Minute, cfg.Frequency, s.loc())
}

func (s *WakeupScheduler) loc() *time.Location {
	if loc := s.location(); loc != nil {
		return loc
	}
	return time.Local
}

func (s *WakeupScheduler) current(key string, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot(key).epoch == epoch
}

func (s *WakeupScheduler) setPending(key string, reg *wakeup.Registration, advisory string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.slot(key)
	st.pending = reg
	st.advisory = advisory
}

// slot must be called with mu held.
func (s *WakeupScheduler) slot(key string) *slotState {
	st, ok := s.slots[key]
	if !ok {
		st = &slotState{}
		s.slots[key] = st
	}
	return st
}
