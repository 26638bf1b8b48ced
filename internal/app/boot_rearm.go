// internal/app/boot_rearm.go
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/reminder"
)

// Scheduler is the part of WakeupScheduler the boot hook and the service use.
type Scheduler interface {
	Schedule(ctx context.Context, identity string, cfg reminder.Config) Outcome
	Cancel(ctx context.Context, identity string)
}

// BootRearmHook restores registrations lost by a restart. It is run once at
// startup, before anything else can schedule.
type BootRearmHook struct {
	configs   reminder.Repository
	scheduler Scheduler
	log       *logrus.Entry
}

func NewBootRearmHook(configs reminder.Repository, scheduler Scheduler, log *logrus.Entry) *BootRearmHook {
	return &BootRearmHook{
		configs:   configs,
		scheduler: scheduler,
		log:       log.WithField("component", "boot_rearm"),
	}
}

// Run re-arms the last active identity first and then every other enabled
// identity, exactly as if each had pressed Save again. An empty store is a
// no-op. Running it twice leaves the same single registration per identity.
func (b *BootRearmHook) Run(ctx context.Context) ([]Outcome, error) {
	var identities []string
	seen := make(map[string]bool)
	add := func(id string) {
		key := reminder.Key(id)
		if !seen[key] {
			seen[key] = true
			identities = append(identities, key)
		}
	}

	active, ok, err := b.configs.ActiveIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read active identity: %w", err)
	}
	if ok {
		add(active)
	}
	enabled, err := b.configs.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled reminders: %w", err)
	}
	for _, id := range enabled {
		add(id)
	}

	var outcomes []Outcome
	for _, id := range identities {
		cfg, err := b.configs.Load(ctx, id)
		if err != nil {
			b.log.WithField("identity", id).Errorf("Failed to load reminder config, skipping: %v", err)
			continue
		}
		if !cfg.Enabled {
			continue
		}
		outcomes = append(outcomes, b.scheduler.Schedule(ctx, id, cfg))
	}

	b.log.Infof("Boot re-arm finished, %d reminder(s) armed", len(outcomes))
	return outcomes, nil
}
