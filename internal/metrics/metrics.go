// Package metrics exposes engine activity as prometheus collectors.
package metrics

import (
	"github.com/pixil98/go-office/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "office"

// Collector counts activity across every session in the process.
type Collector struct {
	sessions       prometheus.Gauge
	presenceSyncs  prometheus.Counter
	peers          prometheus.Histogram
	messages       *prometheus.CounterVec
	persistFailed  prometheus.Counter
	historyFailed  prometheus.Counter
	reactions      prometheus.Counter
	inboundDropped prometheus.Counter
}

var _ realtime.Recorder = (*Collector)(nil)

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of connected sessions.",
		}),
		presenceSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_syncs_total",
			Help:      "Presence table syncs applied to peer maps.",
		}),
		peers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "peers_per_sync",
			Help:      "Peer count after each presence sync.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages by direction.",
		}, []string{"direction"}),
		persistFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_persist_failures_total",
			Help:      "Chat messages that could not be written to the durable store.",
		}),
		historyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_history_failures_total",
			Help:      "Failed reads of recent chat history on join.",
		}),
		reactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reactions shown, local and remote.",
		}),
		inboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_frames_dropped_total",
			Help:      "Inbound client frames rejected by the rate limiter.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.sessions,
		c.presenceSyncs,
		c.peers,
		c.messages,
		c.persistFailed,
		c.historyFailed,
		c.reactions,
		c.inboundDropped,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) SessionOpened() { c.sessions.Inc() }
func (c *Collector) SessionClosed() { c.sessions.Dec() }
func (c *Collector) FrameDropped() { c.inboundDropped.Inc() }

func (c *Collector) PresenceSynced(peers int) {
	c.presenceSyncs.Inc()
	c.peers.Observe(float64(peers))
}

func (c *Collector) MessageSent() { c.messages.WithLabelValues("sent").Inc() }
func (c *Collector) MessageReceived() { c.messages.WithLabelValues("received").Inc() }
func (c *Collector) PersistFailed() { c.persistFailed.Inc() }
func (c *Collector) HistoryFailed() { c.historyFailed.Inc() }
func (c *Collector) ReactionShown() { c.reactions.Inc() }
