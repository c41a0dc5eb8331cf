package driver

import "time"

type DriverOpt func(*Driver)

func WithTickLength(tickLength time.Duration) DriverOpt {
	return func(d *Driver) {
		d.tickLength = tickLength
	}
}

// WithFailureLimit stops the driver after n consecutive failed heartbeats.
// Zero never stops.
func WithFailureLimit(n int) DriverOpt {
	return func(d *Driver) {
		d.failureLimit = n
	}
}
