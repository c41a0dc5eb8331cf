package realtime

import "time"

type SessionOpt func(*Session)

func WithObserver(o Observer) SessionOpt {
	return func(s *Session) {
		s.observer = o
	}
}

func WithRecorder(r Recorder) SessionOpt {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithClock replaces the wall clock used for timestamps and reaction expiry.
func WithClock(c Clock) SessionOpt {
	return func(s *Session) {
		s.clock = c
	}
}

// WithLocation sets the time zone for formatted send times.
func WithLocation(loc *time.Location) SessionOpt {
	return func(s *Session) {
		s.loc = loc
	}
}

// WithHistoryLimit sets how many stored messages seed the sequence on join.
func WithHistoryLimit(n int) SessionOpt {
	return func(s *Session) {
		s.historyLimit = n
	}
}

// WithMessageLimit caps the live message sequence.
func WithMessageLimit(n int) SessionOpt {
	return func(s *Session) {
		s.messageLimit = n
	}
}

func WithReactionTTL(d time.Duration) SessionOpt {
	return func(s *Session) {
		s.reactionTTL = d
	}
}

// WithIOTimeout bounds each store call and channel write.
func WithIOTimeout(d time.Duration) SessionOpt {
	return func(s *Session) {
		s.ioTimeout = d
	}
}

func WithIdGenerator(fn func() string) SessionOpt {
	return func(s *Session) {
		s.newId = fn
	}
}
