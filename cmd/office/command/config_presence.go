package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-office/internal/driver"
	"github.com/pixil98/go-office/internal/messaging"
)

// PresenceConfig controls how often snapshots are republished and how long
// an unrefreshed one stays visible.
type PresenceConfig struct {
	Heartbeat  string `json:"heartbeat"`
	StaleAfter string `json:"stale_after"`
	// FailureLimit stops the heartbeat after that many consecutive failures.
	FailureLimit int `json:"failure_limit"`
}

func (c *PresenceConfig) validate() error {
	el := errors.NewErrorList()

	heartbeat, err := c.heartbeat()
	if err != nil {
		el.Add(fmt.Errorf("presence: parsing heartbeat: %w", err))
	} else if heartbeat < time.Second {
		el.Add(fmt.Errorf("presence: heartbeat must be at least 1 second"))
	}

	stale, err := c.staleAfter()
	if err != nil {
		el.Add(fmt.Errorf("presence: parsing stale_after: %w", err))
	}

	if err == nil && heartbeat >= stale {
		el.Add(fmt.Errorf("presence: heartbeat must be shorter than stale_after"))
	}

	if c.FailureLimit < 0 {
		el.Add(fmt.Errorf("presence: failure_limit must not be negative"))
	}

	return el.Err()
}

func (c *PresenceConfig) heartbeat() (time.Duration, error) {
	if c.Heartbeat == "" {
		return driver.DefaultTickLength, nil
	}
	return time.ParseDuration(c.Heartbeat)
}

func (c *PresenceConfig) staleAfter() (time.Duration, error) {
	if c.StaleAfter == "" {
		return messaging.DefaultStaleAfter, nil
	}
	return time.ParseDuration(c.StaleAfter)
}
