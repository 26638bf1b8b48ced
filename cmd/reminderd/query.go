package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"peakflow_reminder/internal/domain/reminder"
	"peakflow_reminder/internal/infra/config"
	"peakflow_reminder/internal/infra/database"
)

var (
	nextFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "time, t",
			Usage: "wall-clock time as HH:MM",
		},
		cli.StringFlag{
			Name:  "frequency, f",
			Value: "daily",
			Usage: "daily, weekly or monthly",
		},
		cli.StringFlag{
			Name:  "tz",
			Usage: "IANA timezone (default: TIMEZONE or the local zone)",
		},
		cli.IntFlag{
			Name:  "count, n",
			Value: 1,
			Usage: "number of occurrences to print",
		},
	}
	identityFlag = cli.StringFlag{
		Name:  "identity, i",
		Usage: "reminder owner (default: the device-wide reminder)",
	}
	limitFlag = cli.IntFlag{
		Name:  "limit",
		Value: 20,
		Usage: "maximum number of entries, 0 for all",
	}
)

// now is replaced in tests.
var now = time.Now

func next(c *cli.Context) error {
	hour, minute, err := reminder.ParseClock(c.String("time"))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	freq, err := reminder.ParseFrequency(c.String("frequency"))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	loc := time.Local
	if name := c.String("tz"); name != "" {
		if loc, err = time.LoadLocation(name); err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid timezone: %v", err), 2)
		}
	} else if cfg, cfgErr := config.Load(); cfgErr == nil {
		loc = cfg.Location()
	}

	t := reminder.FirstOccurrence(now(), hour, minute, freq, loc)
	anchorDay := now().In(loc).Day()
	for i := 0; i < c.Int("count"); i++ {
		fmt.Fprintln(c.App.Writer, t.Format(time.RFC1123))
		t = reminder.NextAfter(t, t, hour, minute, freq, anchorDay, loc)
	}
	return nil
}

func openStore(ctx context.Context) (*config.AppConfig, database.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open reminder store: %w", err)
	}
	return cfg, store, nil
}

func status(c *cli.Context) error {
	ctx := context.Background()
	cfg, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	key := reminder.Key(c.String("identity"))
	rc, err := store.Load(ctx, key)
	if err != nil {
		return err
	}
	allowed, err := store.NotificationsAllowed(ctx, key)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "identity:      %s\n", key)
	if !rc.Enabled {
		fmt.Fprintln(w, "reminder:      off")
		return nil
	}
	fmt.Fprintf(w, "reminder:      %s at %s\n", rc.Frequency, rc.Clock())
	if rc.HasTarget() {
		fmt.Fprintf(w, "target:        %d L/min\n", rc.TargetValue)
	}
	fmt.Fprintf(w, "notifications: %t\n", allowed)
	loc := cfg.Location()
	fmt.Fprintf(w, "next (approx): %s\n", reminder.FirstOccurrence(now(), rc.Hour, rc.Minute, rc.Frequency, loc).Format(time.RFC1123))
	return nil
}

func history(c *cli.Context) error {
	ctx := context.Background()
	cfg, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListFired(ctx, reminder.Key(c.String("identity")), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(c.App.Writer, "no reminders fired yet")
		return nil
	}
	loc := cfg.Location()
	for _, e := range events {
		fmt.Fprintf(c.App.Writer, "%s  %s  %s\n", e.Timestamp.In(loc).Format("2006-01-02 15:04"), e.ID, e.Message)
	}
	return nil
}
