// internal/domain/reminder/repository.go
package reminder

import "context"

// Repository persists one Config per identity.
// Load never fails on a missing identity: it returns DefaultConfig().
type Repository interface {
	Load(ctx context.Context, identity string) (Config, error)
	Save(ctx context.Context, identity string, cfg Config) error
	Clear(ctx context.Context, identity string) error

	// ListEnabled returns the storage keys of every identity whose config is enabled.
	ListEnabled(ctx context.Context) ([]string, error)
	// ActiveIdentity returns the last identity that saved a config, if any.
	ActiveIdentity(ctx context.Context) (string, bool, error)
	SetActiveIdentity(ctx context.Context, identity string) error
}

// HistoryRepository stores FiredEvents. Entries are never deleted here.
type HistoryRepository interface {
	AppendFired(ctx context.Context, ev FiredEvent) error
	// ListFired returns the newest events first; limit <= 0 means all.
	ListFired(ctx context.Context, identity string, limit int) ([]FiredEvent, error)
}
