package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) InsertReminder(ctx context.Context, r Reminder) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, owner_id, content, deadline, origin) VALUES(?,?,?,?,?)`,
		r.ID, r.OwnerID, r.Content, r.Deadline.Format(time.RFC3339Nano), r.Origin,
	)
	return err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id, ownerID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE id = ? AND owner_id = ?`, id, ownerID)
	return err
}

func (s *sqliteStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	return s.listWhere(ctx, `SELECT id, owner_id, content, deadline, origin FROM reminders ORDER BY id`)
}

func (s *sqliteStore) ListOwnerReminders(ctx context.Context, ownerID int64) ([]Reminder, error) {
	return s.listWhere(ctx,
		`SELECT id, owner_id, content, deadline, origin FROM reminders WHERE owner_id = ? ORDER BY id`,
		ownerID)
}

func (s *sqliteStore) listWhere(ctx context.Context, query string, args ...any) ([]Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var (
			r   Reminder
			raw string
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Content, &raw, &r.Origin); err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			// A corrupt deadline makes one row unusable, not the whole list.
			s.log.Warn("skipping reminder with bad deadline",
				logx.Int64("id", r.ID), logx.String("deadline", raw), logx.Err(err))
			continue
		}
		r.Deadline = at
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountOwnerReminders(ctx context.Context, ownerID int64) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

func (s *sqliteStore) GetUserPrefs(ctx context.Context, userID int64) (UserPrefs, error) {
	p := UserPrefs{UserID: userID}
	if s == nil || s.db == nil {
		return p, ErrDisabled
	}
	var dm int
	err := s.db.QueryRowContext(ctx,
		`SELECT dm_reminders FROM user_prefs WHERE user_id = ?`, userID).Scan(&dm)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	p.DMReminders = dm != 0
	return p, nil
}

func (s *sqliteStore) SetUserPrefs(ctx context.Context, p UserPrefs) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	dm := 0
	if p.DMReminders {
		dm = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_prefs(user_id, dm_reminders) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET dm_reminders=excluded.dm_reminders`,
		p.UserID, dm,
	)
	return err
}
