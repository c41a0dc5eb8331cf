package messaging

import "time"

type TransportOpt func(*Transport)

// WithStaleAfter hides presence entries not refreshed within d. Zero keeps them forever.
func WithStaleAfter(d time.Duration) TransportOpt {
	return func(t *Transport) {
		t.staleAfter = d
	}
}

func withNow(now func() time.Time) TransportOpt {
	return func(t *Transport) {
		t.now = now
	}
}
