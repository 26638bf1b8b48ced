package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"peakflow_reminder/internal/app"
	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
	"peakflow_reminder/internal/domain/wakeup"
	"peakflow_reminder/internal/infra/config"
	"peakflow_reminder/internal/infra/database"
)

func fixNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

// useFileStore points config at a fresh file store and keeps .env lookups
// inside a temp dir.
func useFileStore(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	testChdir(t, dir)
	t.Setenv("STORE_DRIVER", config.StoreFile)
	t.Setenv("DATA_DIR", dir)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("NOTIFY_BACKEND", config.NotifyLog)
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	require.NoError(t, a.Run(append([]string{"reminderd"}, args...)))
	return out.String()
}

func TestNext_PrintsOccurrences(t *testing.T) {
	fixNow(t, time.Date(2025, 1, 31, 7, 0, 0, 0, time.UTC))

	out := run(t, "next", "--time", "08:00", "--frequency", "monthly", "--tz", "UTC", "--count", "3")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Fri, 31 Jan 2025 08:00:00 UTC", lines[0])
	assert.Equal(t, "Fri, 28 Feb 2025 08:00:00 UTC", lines[1])
	assert.Equal(t, "Mon, 31 Mar 2025 08:00:00 UTC", lines[2])
}

func TestNext_RejectsBadInput(t *testing.T) {
	a := newApp()
	a.Writer = &bytes.Buffer{}
	a.ErrWriter = &bytes.Buffer{}
	// NewExitError would call os.Exit through the default handler
	a.ExitErrHandler = func(*cli.Context, error) {}

	assert.Error(t, a.Run([]string{"reminderd", "next", "--time", "8am", "--tz", "UTC"}))
	assert.Error(t, a.Run([]string{"reminderd", "next", "--time", "08:00", "--frequency", "hourly", "--tz", "UTC"}))
}

func TestStatusAndHistory_ReadStore(t *testing.T) {
	cfg := useFileStore(t)
	fixNow(t, time.Date(2025, 5, 6, 7, 0, 0, 0, time.UTC))

	store, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "alice", reminder.Config{Enabled: true, Hour: 8, Frequency: reminder.FrequencyDaily, TargetValue: 300}))
	require.NoError(t, store.AppendFired(ctx, reminder.FiredEvent{ID: "e1", Identity: "alice", Timestamp: time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC), Message: "Target: 300 L/min."}))
	require.NoError(t, store.Close())

	out := run(t, "status", "--identity", "alice")
	assert.Contains(t, out, "DAILY at 08:00")
	assert.Contains(t, out, "target:        300 L/min")
	assert.Contains(t, out, "Tue, 06 May 2025 08:00:00 UTC")

	out = run(t, "status", "--identity", "bob")
	assert.Contains(t, out, "reminder:      off")

	out = run(t, "history", "--identity", "alice")
	assert.Contains(t, out, "2025-05-05 08:00  e1  Target: 300 L/min.")

	out = run(t, "history")
	assert.Contains(t, out, "no reminders fired yet")
}

type recordingPresenter struct {
	shown chan notification.Notification
}

func (p *recordingPresenter) Present(_ context.Context, n notification.Notification) error {
	p.shown <- n
	return nil
}

func nullLog() *logrus.Entry {
	l, _ := logtest.NewNullLogger()
	return logrus.NewEntry(l)
}

func TestCore_SaveArmsExactTierAndBootRestores(t *testing.T) {
	cfg := useFileStore(t)
	store, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rc := newCore(cfg, store, &recordingPresenter{shown: make(chan notification.Notification, 1)}, nullLog())
	_, err = rc.start(ctx)
	require.NoError(t, err)

	at := time.Now().UTC().Add(3 * time.Hour)
	out, err := rc.service.Save(ctx, "alice", reminder.Config{Enabled: true, Hour: at.Hour(), Minute: at.Minute(), Frequency: reminder.FrequencyDaily})
	require.NoError(t, err)
	assert.True(t, out.Registered)
	assert.Equal(t, wakeup.TierExact, out.Tier)
	assert.Equal(t, 1, rc.exact.Len())

	cancel()
	rc.stop()

	// a fresh process on the same store re-arms from disk
	cfg.ExactAlarmsGranted = false
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	restarted := newCore(cfg, store, &recordingPresenter{shown: make(chan notification.Notification, 1)}, nullLog())
	outcomes, err := restarted.start(ctx2)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "alice", outcomes[0].Identity)
	assert.Equal(t, wakeup.TierExactBestEffort, outcomes[0].Tier)
	assert.Equal(t, app.AdvisoryImprecise, outcomes[0].Advisory)

	st, err := restarted.service.Status(ctx2, "alice")
	require.NoError(t, err)
	assert.Equal(t, "exact_best_effort", st.Tier)
	cancel2()
	restarted.stop()
}

func TestCore_DeliveryPresentsAndRecords(t *testing.T) {
	cfg := useFileStore(t)
	cfg.AppDeepLink = "pefr://open"
	store, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	presenter := &recordingPresenter{shown: make(chan notification.Notification, 4)}
	rc := newCore(cfg, store, presenter, nullLog())
	_, err = rc.start(ctx)
	require.NoError(t, err)

	d := wakeup.Delivery{Identity: "alice", ScheduledFor: time.Now(), Hour: 8, Frequency: reminder.FrequencyDaily, TargetValue: 250}
	rc.scheduler.Deliver(ctx, d)

	select {
	case n := <-presenter.shown:
		assert.Equal(t, "alice", n.Identity)
		assert.Contains(t, n.Body, "250")
		assert.Equal(t, "pefr://open", n.TapTarget)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not presented")
	}

	events, err := store.ListFired(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	cancel()
	rc.stop()
}

// testChdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
