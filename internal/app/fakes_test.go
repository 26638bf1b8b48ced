package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
	"peakflow_reminder/internal/domain/wakeup"
)

func nullLog() *logrus.Entry {
	l, _ := logtest.NewNullLogger()
	return logrus.NewEntry(l)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeCaps struct {
	mu          sync.Mutex
	exact, idle bool
}

func (c *fakeCaps) CanScheduleExactAlarms() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exact
}

func (c *fakeCaps) SupportsAllowWhileIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// fakeTimer records registrations by slot. It can be told to fail or panic.
type fakeTimer struct {
	mu     sync.Mutex
	regs   map[string]wakeup.Registration
	err    error
	panics bool
	calls  int
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{regs: make(map[string]wakeup.Registration)}
}

func (t *fakeTimer) Register(_ context.Context, reg wakeup.Registration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.panics {
		panic("alarm service unavailable")
	}
	if t.err != nil {
		return t.err
	}
	t.regs[reg.Slot] = reg
	return nil
}

func (t *fakeTimer) Cancel(_ context.Context, slot string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.panics {
		panic("alarm service unavailable")
	}
	delete(t.regs, slot)
	return nil
}

func (t *fakeTimer) get(slot string) (wakeup.Registration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.regs[slot]
	return r, ok
}

func (t *fakeTimer) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regs)
}

// memStore implements every repository the app layer needs.
type memStore struct {
	mu       sync.Mutex
	configs  map[string]reminder.Config
	active   string
	history  []reminder.FiredEvent
	denied   map[string]bool
	loadErr  error
	permsErr error
}

func newMemStore() *memStore {
	return &memStore{configs: make(map[string]reminder.Config), denied: make(map[string]bool)}
}

func (m *memStore) Load(_ context.Context, identity string) (reminder.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return reminder.Config{}, m.loadErr
	}
	if cfg, ok := m.configs[identity]; ok {
		return cfg, nil
	}
	return reminder.DefaultConfig(), nil
}

func (m *memStore) Save(_ context.Context, identity string, cfg reminder.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[identity] = cfg
	return nil
}

func (m *memStore) Clear(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.configs, identity)
	return nil
}

func (m *memStore) ListEnabled(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, cfg := range m.configs {
		if cfg.Enabled {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ActiveIdentity(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != "", nil
}

func (m *memStore) SetActiveIdentity(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = identity
	return nil
}

func (m *memStore) AppendFired(_ context.Context, ev reminder.FiredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, ev)
	return nil
}

func (m *memStore) ListFired(_ context.Context, identity string, limit int) ([]reminder.FiredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reminder.FiredEvent
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Identity == identity {
			out = append(out, m.history[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) NotificationsAllowed(_ context.Context, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.permsErr != nil {
		return false, m.permsErr
	}
	return !m.denied[identity], nil
}

func (m *memStore) SetNotificationsAllowed(_ context.Context, identity string, allowed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[identity] = !allowed
	return nil
}

func (m *memStore) fired() []reminder.FiredEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]reminder.FiredEvent(nil), m.history...)
}

type fakePresenter struct {
	mu    sync.Mutex
	shown []notification.Notification
	err   error
	// block, when set, is waited on after entered is signalled.
	entered chan struct{}
	block   chan struct{}
}

func (p *fakePresenter) Present(_ context.Context, n notification.Notification) error {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.shown = append(p.shown, n)
	return nil
}

func (p *fakePresenter) notifications() []notification.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notification.Notification(nil), p.shown...)
}

var errStorage = errors.New("storage unavailable")

// harness wires the app layer the way cmd/reminderd does, with fakes.
type harness struct {
	clock     *fakeClock
	caps      *fakeCaps
	exact     *fakeTimer
	inexact   *fakeTimer
	store     *memStore
	presenter *fakePresenter
	loc       *time.Location
	scheduler *WakeupScheduler
	trigger   *TriggerHandler
	service   *ReminderService
}

func newHarness(now time.Time) *harness {
	h := &harness{
		clock:     &fakeClock{now: now},
		caps:      &fakeCaps{exact: true, idle: true},
		exact:     newFakeTimer(),
		inexact:   newFakeTimer(),
		store:     newMemStore(),
		presenter: &fakePresenter{},
		loc:       now.Location(),
	}
	log := nullLog()
	h.scheduler = NewWakeupScheduler(
		DefaultStrategies(h.exact, h.inexact, h.caps, log),
		h.caps,
		log,
		WithClock(h.clock.Now),
		WithLocation(func() *time.Location { return h.loc }),
	)
	h.trigger = NewTriggerHandler(h.store, h.store, h.store, h.presenter, h.scheduler, "pefr://open", time.Second, log)
	h.trigger.now = h.clock.Now
	h.scheduler.SetFireHandler(h.trigger.OnFire)
	h.service = NewReminderService(h.store, h.store, h.store, h.scheduler, log)
	return h
}

// fire delivers the pending registration of identity at the given instant.
func (h *harness) fire(identity string, at time.Time) bool {
	reg, ok := h.exact.get(identity)
	if !ok {
		if reg, ok = h.inexact.get(identity); !ok {
			return false
		}
	}
	h.clock.Set(at)
	h.scheduler.Deliver(context.Background(), reg.Delivery)
	return true
}

func (h *harness) registrations(identity string) int {
	n := 0
	if _, ok := h.exact.get(identity); ok {
		n++
	}
	if _, ok := h.inexact.get(identity); ok {
		n++
	}
	return n
}
