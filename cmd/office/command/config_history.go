package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/history/pebble"
	"github.com/pixil98/go-office/internal/history/sqlite"
)

const DefaultTimeZone = "America/Sao_Paulo"

type HistoryDriver string

const (
	HistoryDriverSqlite HistoryDriver = "sqlite"
	HistoryDriverPebble HistoryDriver = "pebble"
)

type HistoryConfig struct {
	Driver   HistoryDriver `json:"driver" env:"OFFICE_HISTORY_DRIVER"`
	Path     string        `json:"path" env:"OFFICE_HISTORY_PATH"`
	TimeZone string        `json:"time_zone" env:"OFFICE_TIME_ZONE"`
}

func (c *HistoryConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Driver {
	case "", HistoryDriverSqlite, HistoryDriverPebble:
	default:
		el.Add(fmt.Errorf("history: unknown driver %q", c.Driver))
	}
	if c.Path == "" {
		el.Add(fmt.Errorf("history: path is required"))
	}
	if _, err := c.location(); err != nil {
		el.Add(fmt.Errorf("history: %w", err))
	}

	return el.Err()
}

func (c *HistoryConfig) location() (*time.Location, error) {
	name := c.TimeZone
	if name == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time_zone %q: %w", name, err)
	}
	return loc, nil
}

func (c *HistoryConfig) buildStore() (history.Store, error) {
	switch c.Driver {
	case "", HistoryDriverSqlite:
		return sqlite.Open(c.Path)
	case HistoryDriverPebble:
		return pebble.Open(c.Path)
	default:
		return nil, fmt.Errorf("unknown history driver %q", c.Driver)
	}
}
