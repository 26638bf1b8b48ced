package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/app"
	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/infra/config"
	"peakflow_reminder/internal/infra/database"
	"peakflow_reminder/internal/infra/scheduler"
)

// core is the assembled reminder core.
type core struct {
	cfg       *config.AppConfig
	store     database.Store
	caps      *scheduler.RuntimeCapabilities
	exact     *scheduler.ExactTimer
	inexact   *scheduler.InexactTimer
	scheduler *app.WakeupScheduler
	trigger   *app.TriggerHandler
	service   *app.ReminderService
	hook      *app.BootRearmHook
	log       *logrus.Entry
}

func newCore(cfg *config.AppConfig, store database.Store, presenter notification.Presenter, log *logrus.Entry) *core {
	caps := scheduler.NewRuntimeCapabilities(cfg.ExactAlarmsGranted, cfg.AllowWhileIdle)
	exact := scheduler.NewExactTimer(caps, cfg.MaxTimerSleep, log)
	inexact := scheduler.NewInexactTimer(cfg.InexactWindow, log)

	sched := app.NewWakeupScheduler(
		app.DefaultStrategies(exact, inexact, caps, log),
		caps,
		log,
		app.WithLocation(cfg.Location),
		app.WithImmediateWindow(cfg.ImmediateFireWindow),
	)
	trigger := app.NewTriggerHandler(store, store, store, presenter, sched, cfg.AppDeepLink, cfg.TriggerBudget, log)
	sched.SetFireHandler(trigger.OnFire)

	return &core{
		cfg:       cfg,
		store:     store,
		caps:      caps,
		exact:     exact,
		inexact:   inexact,
		scheduler: sched,
		trigger:   trigger,
		service:   app.NewReminderService(store, store, store, sched, log),
		hook:      app.NewBootRearmHook(store, sched, log),
		log:       log,
	}
}

// start runs both timers and re-arms every stored reminder.
func (r *core) start(ctx context.Context) ([]app.Outcome, error) {
	r.exact.Start(ctx, r.scheduler.Deliver)
	r.inexact.Start(ctx, r.scheduler.Deliver)
	return r.hook.Run(ctx)
}

// stop waits for both timers. ctx passed to start must already be cancelled.
func (r *core) stop() {
	r.inexact.Stop()
	<-r.exact.Done()
}
