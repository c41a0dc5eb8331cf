// Package pebble provides a Pebble-backed chat log.
package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pixil98/go-office/internal/history"
)

// Rows sort by creation time under this prefix. The upper bound is the next byte after ':'.
const (
	keyPrefix = "msg:"
	keyUpper  = "msg;"
)

// Store persists chat rows as JSON values keyed by creation time.
type Store struct {
	db  *pebble.DB
	seq atomic.Uint64

	// mu guards db against use after Close.
	mu     sync.RWMutex
	closed bool
}

var _ history.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		return nil
	}
	s.closed = true
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
	row.CreatedAt = row.CreatedAt.UTC()

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshalling row: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return history.ErrClosed
	}

	key := fmt.Sprintf("%s%020d-%06d", keyPrefix, row.CreatedAt.UnixNano(), s.seq.Add(1)%1000000)
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("saving row %s: %w", row.Id, err)
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

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, history.ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return nil, fmt.Errorf("opening iterator: %w", err)
	}
	defer func() { _ = iter.Close() }()

	var out []history.Row
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		var r history.Row
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("decoding row %s: %w", iter.Key(), err)
		}
		out = append(out, r)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}
