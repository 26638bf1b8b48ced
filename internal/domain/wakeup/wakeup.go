// Package wakeup describes the contract between the reminder core and
// whatever runtime can invoke code at a future instant: an in-process timer,
// an OS alarm service or a cron-like daemon.
package wakeup

import (
	"context"
	"fmt"
	"time"

	"peakflow_reminder/internal/domain/reminder"
)

// Tier is a scheduling privilege level. Lower values are preferred.
type Tier int

const (
	// TierExact is exact, wake-capable, highest priority. Needs the exact-alarm capability.
	TierExact Tier = iota
	// TierExactBestEffort is exact but may be deferred by the runtime while idle.
	TierExactBestEffort
	// TierInexact lets the runtime batch the wake-up inside a window.
	TierInexact
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierExactBestEffort:
		return "exact_best_effort"
	case TierInexact:
		return "inexact"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

var (
	ErrExactAlarmDenied = fmt.Errorf("exact alarm capability not granted")
	ErrTierUnsupported  = fmt.Errorf("wake-up tier not supported by runtime")
	ErrTimerStopped     = fmt.Errorf("wake-up timer is stopped")
)

// Delivery is the payload handed back when a wake-up fires.
type Delivery struct {
	Identity     string
	TargetValue  int
	ScheduledFor time.Time
	// AnchorDay is the day of month the reminder was first armed on.
	AnchorDay int
	// Hour, Minute and Frequency are a copy of the config at arm time, used
	// when the stored config cannot be read during the fire.
	Hour      int
	Minute    int
	Frequency reminder.Frequency
	Epoch     uint64
	Tier      Tier
	Immediate bool
}

// Registration asks a Timer to deliver d at At. Slot identifies the single
// outstanding registration; registering the same slot replaces the old one.
type Registration struct {
	Slot     string
	At       time.Time
	Tier     Tier
	Delivery Delivery
}

// Handler receives deliveries.
type Handler func(ctx context.Context, d Delivery)

// Timer is a wake-up timer service.
type Timer interface {
	Register(ctx context.Context, reg Registration) error
	// Cancel removes the registration of slot. Unknown slots are not an error.
	Cancel(ctx context.Context, slot string) error
}

// Capabilities reports what the runtime currently allows. Values may change
// at any time, so they are queried on every scheduling attempt.
type Capabilities interface {
	CanScheduleExactAlarms() bool
	SupportsAllowWhileIdle() bool
}
