// Package driver republishes presence on a fixed heartbeat.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixil98/go-errors"
)

const (
	DefaultTickLength = time.Second * 30
)

// Manager is anything with work to do once per heartbeat.
type Manager interface {
	Tick(context.Context) error
}

// Driver ticks its managers on every heartbeat. A failing heartbeat is
// logged and retried on the next one; with a failure limit set, that many
// consecutive failures stop the driver.
type Driver struct {
	tickLength   time.Duration
	failureLimit int
	managers     []Manager
}

func NewDriver(managers []Manager, opts ...DriverOpt) *Driver {
	d := &Driver{
		tickLength: DefaultTickLength,
		managers:   managers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Driver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()

	slog.InfoContext(ctx, "presence heartbeat started", "interval", d.tickLength)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.beat(ctx); err != nil {
				failures++
				slog.WarnContext(ctx, "presence heartbeat failed", "failures", failures, "error", err)
				if d.failureLimit > 0 && failures >= d.failureLimit {
					return fmt.Errorf("%d consecutive heartbeats failed: %w", failures, err)
				}
				continue
			}
			failures = 0
		}
	}
}

// beat bounds one Tick by the heartbeat interval so a stalled manager
// cannot overlap the next beat.
func (d *Driver) beat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.tickLength)
	defer cancel()
	return d.Tick(ctx)
}

// Tick runs every manager, even after one fails, and returns their errors together.
func (d *Driver) Tick(ctx context.Context) error {
	el := errors.NewErrorList()
	for _, m := range d.managers {
		el.Add(m.Tick(ctx))
	}
	return el.Err()
}
