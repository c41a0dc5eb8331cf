package pebble

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/office"
	"github.com/pixil98/go-testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	testutil.AssertErrorContains(t, err, "storage path is required")
}

func TestOpen_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = s.Insert(context.Background(), history.Row{Text: "oi", UserId: "u1", Channel: office.ChannelGeneral})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("unexpected error on reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	rows, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "row count", len(rows), 1)
}

func TestStore_Insert(t *testing.T) {
	tests := map[string]struct {
		row    history.Row
		expErr string
	}{
		"valid row": {
			row: history.Row{Text: "bom dia", UserId: "u1", SenderName: "Ana", Channel: office.ChannelGeneral},
		},
		"blank text": {
			row:    history.Row{Text: "   ", UserId: "u1", Channel: office.ChannelGeneral},
			expErr: "text is required",
		},
		"missing user": {
			row:    history.Row{Text: "oi", Channel: office.ChannelGeneral},
			expErr: "user_id is required",
		},
		"missing channel": {
			row:    history.Row{Text: "oi", UserId: "u1"},
			expErr: "channel is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := openTestStore(t)
			err := s.Insert(context.Background(), tt.row)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			rows, err := s.Recent(context.Background(), 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "row count", len(rows), 1)
			testutil.AssertEqual(t, "text", rows[0].Text, tt.row.Text)
			testutil.AssertEqual(t, "sender", rows[0].SenderName, tt.row.SenderName)
			testutil.AssertEqual(t, "id generated", rows[0].Id != "", true)
		})
	}
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, text := range []string{"first", "second", "third"} {
		err := s.Insert(ctx, history.Row{
			Id:        text,
			Text:      text,
			UserId:    "u1",
			Channel:   office.ChannelGeneral,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	tests := map[string]struct {
		limit  int
		expIds []string
	}{
		"all rows":   {limit: 10, expIds: []string{"third", "second", "first"}},
		"limited":    {limit: 2, expIds: []string{"third", "second"}},
		"zero limit": {limit: 0, expIds: nil},
		"negative":   {limit: -1, expIds: nil},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rows, err := s.Recent(ctx, tt.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "row count", len(rows), len(tt.expIds))
			for i, id := range tt.expIds {
				testutil.AssertEqual(t, "id", rows[i].Id, id)
			}
		})
	}

	rows, _ := s.Recent(ctx, 1)
	testutil.AssertEqual(t, "created_at", rows[0].CreatedAt.Equal(base.Add(2*time.Minute)), true)
}

func TestStore_SameTimestampKeepsInsertOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b"} {
		err := s.Insert(ctx, history.Row{Id: id, Text: id, UserId: "u1", Channel: office.ChannelRandom, CreatedAt: at})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	rows, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "newest", rows[0].Id, "b")
	testutil.AssertEqual(t, "oldest", rows[1].Id, "a")
}

func TestStore_CloseTwice(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Recent(ctx, 5)
	testutil.AssertErrorContains(t, err, "context canceled")
}

func TestStore_UseAfterClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = s.Insert(context.Background(), history.Row{Text: "oi", UserId: "u1", Channel: office.ChannelGeneral})
	testutil.AssertEqual(t, "insert", errors.Is(err, history.ErrClosed), true)

	_, err = s.Recent(context.Background(), 10)
	testutil.AssertEqual(t, "recent", errors.Is(err, history.ErrClosed), true)
}
