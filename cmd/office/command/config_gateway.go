package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-office/internal/gateway"
)

type GatewayConfig struct {
	Addr            string  `json:"addr" env:"OFFICE_HTTP_ADDR"`
	Room            string  `json:"room" env:"OFFICE_ROOM"`
	EventsPerSecond float64 `json:"events_per_second"`
	Burst           int     `json:"burst"`
}

func (c *GatewayConfig) validate() error {
	el := errors.NewErrorList()

	if c.Addr == "" {
		el.Add(fmt.Errorf("gateway: addr is required"))
	}
	if c.EventsPerSecond < 0 {
		el.Add(fmt.Errorf("gateway: events_per_second must not be negative"))
	}
	if c.Burst < 0 {
		el.Add(fmt.Errorf("gateway: burst must not be negative"))
	}

	return el.Err()
}

func (c *GatewayConfig) handlerOpts() []gateway.HandlerOpt {
	var opts []gateway.HandlerOpt
	if c.Room != "" {
		opts = append(opts, gateway.WithRoom(c.Room))
	}
	if c.EventsPerSecond > 0 {
		burst := c.Burst
		if burst == 0 {
			burst = int(c.EventsPerSecond * 2)
		}
		opts = append(opts, gateway.WithRateLimit(c.EventsPerSecond, burst))
	}
	return opts
}
