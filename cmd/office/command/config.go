package command

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/pixil98/go-errors"
)

type Config struct {
	Nats     NatsConfig     `json:"nats"`
	History  HistoryConfig  `json:"history"`
	Gateway  GatewayConfig  `json:"gateway"`
	Profiles ProfilesConfig `json:"profiles"`
	Presence PresenceConfig `json:"presence"`
}

// Validate applies environment overrides, then checks every section.
func (c *Config) Validate() error {
	if err := c.applyEnv(); err != nil {
		return err
	}

	el := errors.NewErrorList()

	el.Add(c.Nats.validate())
	el.Add(c.History.validate())
	el.Add(c.Gateway.validate())
	el.Add(c.Profiles.validate())
	el.Add(c.Presence.validate())

	return el.Err()
}

// applyEnv overrides loaded values with any OFFICE_* variables that are set.
func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

type ProfilesConfig struct {
	Path string `json:"path" env:"OFFICE_PROFILES_PATH"`
}

func (c *ProfilesConfig) validate() error {
	if c.Path == "" {
		return fmt.Errorf("profiles: path is required")
	}
	return nil
}
