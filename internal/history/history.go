// Package history is the durable, append-only chat log.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-office/internal/office"
)

// Row is one persisted chat message.
type Row struct {
	Id         string            `json:"id"`
	Text       string            `json:"text"`
	Channel    office.ChannelTag `json:"channel"`
	UserId     string            `json:"user_id"`
	SenderName string            `json:"sender_name"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (r Row) Validate() error {
	el := errors.NewErrorList()

	if strings.TrimSpace(r.Text) == "" {
		el.Add(fmt.Errorf("text is required"))
	}
	if r.UserId == "" {
		el.Add(fmt.Errorf("user_id is required"))
	}
	if r.Channel == "" {
		el.Add(fmt.Errorf("channel is required"))
	}

	return el.Err()
}

// Store reads and appends chat rows.
type Store interface {
	// Recent returns at most limit rows, newest first.
	Recent(ctx context.Context, limit int) ([]Row, error)
	// Insert appends one row. A zero CreatedAt is stamped with the current time.
	Insert(ctx context.Context, row Row) error
	Close() error
}
