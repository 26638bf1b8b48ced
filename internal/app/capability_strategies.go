// internal/app/capability_strategies.go
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/wakeup"
)

// CapabilityStrategy registers a wake-up at one privilege tier.
// TryRegister never panics and never returns an error: a failure means the
// scheduler should try the next tier.
type CapabilityStrategy interface {
	Tier() wakeup.Tier
	TryRegister(ctx context.Context, reg wakeup.Registration) bool
	Cancel(ctx context.Context, slot string)
}

// timerStrategy adapts a wakeup.Timer to a single tier, gated by an
// optional capability probe that is evaluated on every attempt.
type timerStrategy struct {
	tier      wakeup.Tier
	timer     wakeup.Timer
	available func() bool
	log       *logrus.Entry
}

// NewExactStrategy is tier A: usable only while exact alarms are granted.
func NewExactStrategy(timer wakeup.Timer, caps wakeup.Capabilities, log *logrus.Entry) CapabilityStrategy {
	return &timerStrategy{tier: wakeup.TierExact, timer: timer, available: caps.CanScheduleExactAlarms, log: log}
}

// NewBestEffortStrategy is tier B: exact instant, the runtime may defer it while idle.
func NewBestEffortStrategy(timer wakeup.Timer, caps wakeup.Capabilities, log *logrus.Entry) CapabilityStrategy {
	return &timerStrategy{tier: wakeup.TierExactBestEffort, timer: timer, available: caps.SupportsAllowWhileIdle, log: log}
}

// NewInexactStrategy is tier C, accepted everywhere.
func NewInexactStrategy(timer wakeup.Timer, log *logrus.Entry) CapabilityStrategy {
	return &timerStrategy{tier: wakeup.TierInexact, timer: timer, log: log}
}

// DefaultStrategies returns tiers A, B and C in preference order.
func DefaultStrategies(exact, inexact wakeup.Timer, caps wakeup.Capabilities, log *logrus.Entry) []CapabilityStrategy {
	return []CapabilityStrategy{
		NewExactStrategy(exact, caps, log),
		NewBestEffortStrategy(exact, caps, log),
		NewInexactStrategy(inexact, log),
	}
}

func (s *timerStrategy) Tier() wakeup.Tier { return s.tier }

func (s *timerStrategy) TryRegister(ctx context.Context, reg wakeup.Registration) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("tier", s.tier.String()).Errorf("Wake-up registration panicked: %v", r)
			ok = false
		}
	}()

	if s.available != nil && !s.available() {
		s.log.WithField("tier", s.tier.String()).Debug("Tier not available, skipping")
		return false
	}
	reg.Tier = s.tier
	reg.Delivery.Tier = s.tier
	if err := s.timer.Register(ctx, reg); err != nil {
		s.log.WithFields(logrus.Fields{
			"tier": s.tier.String(),
			"slot": reg.Slot,
		}).Warnf("Wake-up registration failed: %v", err)
		return false
	}
	return true
}

func (s *timerStrategy) Cancel(ctx context.Context, slot string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("tier", s.tier.String()).Errorf("Wake-up cancel panicked: %v", r)
		}
	}()
	if err := s.timer.Cancel(ctx, slot); err != nil {
		s.log.WithField("tier", s.tier.String()).Warnf("Wake-up cancel failed: %v", err)
	}
}

func (s *timerStrategy) String() string {
	return fmt.Sprintf("strategy(%s)", s.tier)
}
