package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pixil98/go-office/internal/driver"
	"github.com/pixil98/go-office/internal/gateway"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/messaging"
	"github.com/pixil98/go-office/internal/metrics"
	"github.com/pixil98/go-office/internal/profile"
	"github.com/pixil98/go-service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	workers := service.WorkerList{}

	// Broker connection
	var conner messaging.Conner
	if cfg.Nats.embedded() {
		ns, err := cfg.Nats.buildNatsServer()
		if err != nil {
			return nil, fmt.Errorf("creating nats server: %w", err)
		}
		workers["nats"] = ns
		conner = ns
	} else {
		rc := cfg.Nats.buildRemoteConn()
		workers["nats"] = rc
		conner = rc
	}

	staleAfter, err := cfg.Presence.staleAfter()
	if err != nil {
		return nil, fmt.Errorf("parsing stale_after: %w", err)
	}
	transport := messaging.NewTransport(conner, messaging.WithStaleAfter(staleAfter))

	// Durable chat log
	store, err := cfg.History.buildStore()
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	workers["history"] = &storeCloser{store: store}

	loc, err := cfg.History.location()
	if err != nil {
		return nil, err
	}

	profiles, err := profile.Open(cfg.Profiles.Path)
	if err != nil {
		return nil, err
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	// Websocket gateway
	registry := gateway.NewRegistry()
	opts := append(cfg.Gateway.handlerOpts(),
		gateway.WithMetrics(collector),
		gateway.WithLocation(loc),
	)
	handler := gateway.NewHandler(transport, store, profiles, registry, opts...)
	workers["gateway"] = gateway.NewServer(cfg.Gateway.Addr, handler, registry, reg)

	// Presence heartbeat
	heartbeat, err := cfg.Presence.heartbeat()
	if err != nil {
		return nil, fmt.Errorf("parsing heartbeat: %w", err)
	}
	workers["driver"] = driver.NewDriver(
		[]driver.Manager{registry},
		driver.WithTickLength(heartbeat),
		driver.WithFailureLimit(cfg.Presence.FailureLimit),
	)

	return workers, nil
}

// storeCloser holds the history store open for the life of the process.
type storeCloser struct {
	store history.Store
}

func (w *storeCloser) Start(ctx context.Context) error {
	<-ctx.Done()
	if err := w.store.Close(); err != nil {
		slog.Warn("closing history store", "error", err)
	}
	return nil
}
