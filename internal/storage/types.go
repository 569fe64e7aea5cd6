package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite" (or empty): SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Reminder is one pending deferred notification.
//
// Deadline is stored with its timezone (RFC3339Nano). Origin is an opaque
// locator back to the triggering chat message ("chatID/messageID"); the
// delivery path resolves the destination chat from it.
type Reminder struct {
	ID       int64
	OwnerID  int64
	Content  string
	Deadline time.Time
	Origin   string
}

// UserPrefs holds per-user delivery settings.
type UserPrefs struct {
	UserID      int64
	DMReminders bool
}

// Store is the persistence API used by the reminder service.
// Each call is independently atomic; there is no cross-call locking.
type Store interface {
	InsertReminder(ctx context.Context, r Reminder) error
	// DeleteReminder is idempotent: deleting an absent id is not an error.
	DeleteReminder(ctx context.Context, id, ownerID int64) error
	ListReminders(ctx context.Context) ([]Reminder, error)
	ListOwnerReminders(ctx context.Context, ownerID int64) ([]Reminder, error)
	CountOwnerReminders(ctx context.Context, ownerID int64) (int, error)

	GetUserPrefs(ctx context.Context, userID int64) (UserPrefs, error)
	SetUserPrefs(ctx context.Context, p UserPrefs) error

	Close() error
}
