package database

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
)

const (
	stateFileName   = "reminders.json"
	historyFileName = "history.jsonl"
)

type configRecord struct {
	Enabled     bool   `json:"enabled"`
	Hour        int    `json:"hour"`
	Minute      int    `json:"minute"`
	Frequency   string `json:"frequency"`
	TargetValue int    `json:"target_value"`
}

type stateDocument struct {
	Configs        map[string]configRecord `json:"configs"`
	ActiveIdentity string                  `json:"active_identity,omitempty"`
	Notifications  map[string]bool         `json:"notifications,omitempty"`
}

type historyRecord struct {
	ID       string    `json:"id"`
	Identity string    `json:"identity"`
	FiredAt  time.Time `json:"fired_at"`
	Message  string    `json:"message"`
}

// FileReminderRepository keeps every config in one JSON document, rewritten
// atomically on each change, and appends history as JSON lines. Nothing is
// cached, so a CLI process and the daemon can share one directory.
type FileReminderRepository struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

func NewFileReminderRepository(fs afero.Fs, dir string) (*FileReminderRepository, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileReminderRepository{fs: fs, dir: dir}, nil
}

func (r *FileReminderRepository) Load(_ context.Context, identity string) (reminder.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readState()
	if err != nil {
		return reminder.Config{}, err
	}
	rec, ok := doc.Configs[reminder.Key(identity)]
	if !ok {
		return reminder.DefaultConfig(), nil
	}
	freq, err := reminder.ParseFrequency(rec.Frequency)
	if err != nil {
		return reminder.Config{}, fmt.Errorf("error loading reminder config: %w", err)
	}
	return reminder.Config{
		Enabled:     rec.Enabled,
		Hour:        rec.Hour,
		Minute:      rec.Minute,
		Frequency:   freq,
		TargetValue: rec.TargetValue,
	}, nil
}

func (r *FileReminderRepository) Save(_ context.Context, identity string, cfg reminder.Config) error {
	return r.update(func(doc *stateDocument) {
		doc.Configs[reminder.Key(identity)] = configRecord{
			Enabled:     cfg.Enabled,
			Hour:        cfg.Hour,
			Minute:      cfg.Minute,
			Frequency:   string(cfg.Frequency),
			TargetValue: cfg.TargetValue,
		}
	})
}

func (r *FileReminderRepository) Clear(_ context.Context, identity string) error {
	return r.update(func(doc *stateDocument) {
		delete(doc.Configs, reminder.Key(identity))
	})
}

func (r *FileReminderRepository) ListEnabled(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readState()
	if err != nil {
		return nil, err
	}
	var identities []string
	for id, rec := range doc.Configs {
		if rec.Enabled {
			identities = append(identities, id)
		}
	}
	sort.Strings(identities)
	return identities, nil
}

func (r *FileReminderRepository) ActiveIdentity(_ context.Context) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readState()
	if err != nil {
		return "", false, err
	}
	return doc.ActiveIdentity, doc.ActiveIdentity != "", nil
}

func (r *FileReminderRepository) SetActiveIdentity(_ context.Context, identity string) error {
	return r.update(func(doc *stateDocument) {
		doc.ActiveIdentity = reminder.Key(identity)
	})
}

func (r *FileReminderRepository) NotificationsAllowed(_ context.Context, identity string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readState()
	if err != nil {
		return false, err
	}
	allowed, ok := doc.Notifications[reminder.Key(identity)]
	return !ok || allowed, nil
}

func (r *FileReminderRepository) SetNotificationsAllowed(_ context.Context, identity string, allowed bool) error {
	return r.update(func(doc *stateDocument) {
		if doc.Notifications == nil {
			doc.Notifications = make(map[string]bool)
		}
		doc.Notifications[reminder.Key(identity)] = allowed
	})
}

func (r *FileReminderRepository) AppendFired(_ context.Context, ev reminder.FiredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, err := json.Marshal(historyRecord{
		ID:       ev.ID,
		Identity: reminder.Key(ev.Identity),
		FiredAt:  ev.Timestamp,
		Message:  ev.Message,
	})
	if err != nil {
		return fmt.Errorf("error encoding fired event: %w", err)
	}

	f, err := r.fs.OpenFile(r.path(historyFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error opening history file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("error appending fired event: %w", err)
	}
	return nil
}

func (r *FileReminderRepository) ListFired(_ context.Context, identity string, limit int) ([]reminder.FiredEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.fs.Open(r.path(historyFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error opening history file: %w", err)
	}
	defer f.Close()

	key := reminder.Key(identity)
	var events []reminder.FiredEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec historyRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// a torn last line after a crash is skipped
			continue
		}
		if rec.Identity != key {
			continue
		}
		events = append(events, reminder.FiredEvent{
			ID:        rec.ID,
			Identity:  rec.Identity,
			Timestamp: rec.FiredAt,
			Message:   rec.Message,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading history file: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Close is a no-op; the repository holds no open handles.
func (r *FileReminderRepository) Close() error { return nil }

func (r *FileReminderRepository) update(mutate func(doc *stateDocument)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readState()
	if err != nil {
		return err
	}
	mutate(doc)
	return r.writeState(doc)
}

// readState must be called with mu held.
func (r *FileReminderRepository) readState() (*stateDocument, error) {
	doc := &stateDocument{Configs: make(map[string]configRecord)}
	data, err := afero.ReadFile(r.fs, r.path(stateFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("error reading reminder state: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("error decoding reminder state: %w", err)
	}
	if doc.Configs == nil {
		doc.Configs = make(map[string]configRecord)
	}
	return doc, nil
}

// writeState writes to a temp file and renames it over the old document.
func (r *FileReminderRepository) writeState(doc *stateDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding reminder state: %w", err)
	}
	tmp := r.path(stateFileName + ".tmp")
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing reminder state: %w", err)
	}
	if err := r.fs.Rename(tmp, r.path(stateFileName)); err != nil {
		return fmt.Errorf("error replacing reminder state: %w", err)
	}
	return nil
}

func (r *FileReminderRepository) path(name string) string {
	return filepath.Join(r.dir, name)
}

var _ reminder.Repository = (*FileReminderRepository)(nil)
var _ reminder.HistoryRepository = (*FileReminderRepository)(nil)
var _ notification.PermissionRepository = (*FileReminderRepository)(nil)
