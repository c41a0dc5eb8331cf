package gateway

import (
	"time"

	"github.com/pixil98/go-office/internal/office"
)

type HandlerOpt func(*Handler)

func WithRoom(roomId string) HandlerOpt {
	return func(h *Handler) {
		h.roomId = roomId
	}
}

func WithMetrics(m Metrics) HandlerOpt {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithRateLimit bounds the frames a single connection may send.
func WithRateLimit(eventsPerSecond float64, burst int) HandlerOpt {
	return func(h *Handler) {
		h.eventsPerSecond = eventsPerSecond
		h.burst = burst
	}
}

func WithLocation(loc *time.Location) HandlerOpt {
	return func(h *Handler) {
		h.loc = loc
	}
}

func WithSpawn(fn func() office.Point) HandlerOpt {
	return func(h *Handler) {
		h.spawn = fn
	}
}
