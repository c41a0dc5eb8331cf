// Package sqlite provides a SQLite-backed chat log.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/history/sqlite/migrations"
	"github.com/pixil98/go-office/internal/office"
	_ "modernc.org/sqlite"
)

// Store persists chat rows in SQLite.
type Store struct {
	db *sql.DB
}

var _ history.Store = (*Store)(nil)

// Open opens the database at path and applies the embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, row history.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid row: %w", err)
	}
	if row.Id == "" {
		row.Id = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, sender_name, channel, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.Id,
		row.UserId,
		row.SenderName,
		string(row.Channel),
		row.Text,
		row.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]history.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, sender_name, channel, text, created_at
		 FROM messages
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []history.Row
	for rows.Next() {
		var (
			r       history.Row
			channel string
			millis  int64
		)
		if err := rows.Scan(&r.Id, &r.UserId, &r.SenderName, &channel, &r.Text, &millis); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		r.Channel = office.ChannelTag(channel)
		r.CreatedAt = time.UnixMilli(millis).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}
