package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Conner hands out the shared client connection once it is available.
type Conner interface {
	Conn(ctx context.Context) (*nats.Conn, error)
}

// NatsServer runs an embedded NATS server with JetStream enabled and keeps
// one client connection to it.
type NatsServer struct {
	ns *server.Server

	mu    sync.Mutex
	conn  *nats.Conn
	ready chan struct{}

	startupTimeout time.Duration
	host           string
	port           int
	storeDir       string
}

func NewNatsServer(opts ...NatsServerOpt) (*NatsServer, error) {
	s := &NatsServer{
		startupTimeout: 10 * time.Second,
		host:           "127.0.0.1",
		ready:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:      s.host,
		Port:      s.port,
		JetStream: true,
		StoreDir:  s.storeDir,
		NoSigs:    true, // Let the application handle signals
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	s.ns = ns

	return s, nil
}

func (n *NatsServer) Start(ctx context.Context) error {
	n.ns.Start()

	if !n.ns.ReadyForConnections(n.startupTimeout) {
		return fmt.Errorf("nats server not ready for connections")
	}

	conn, err := nats.Connect(n.ns.ClientURL(), nats.Name("office-embedded"))
	if err != nil {
		n.ns.Shutdown()
		return fmt.Errorf("creating nats client connection: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	close(n.ready)

	slog.InfoContext(ctx, "nats server listening", "addr", n.ns.Addr(), "jetstream", n.ns.JetStreamEnabled())

	<-ctx.Done()
	if err := conn.Drain(); err != nil {
		slog.WarnContext(ctx, "draining nats connection", "error", err)
	}
	n.ns.Shutdown()
	n.ns.WaitForShutdown()

	return nil
}

// Conn blocks until the server is accepting connections or ctx ends.
func (n *NatsServer) Conn(ctx context.Context) (*nats.Conn, error) {
	return awaitConn(ctx, n.ready, &n.mu, &n.conn)
}

// RemoteConn connects to an external NATS deployment.
type RemoteConn struct {
	url  string
	name string

	mu    sync.Mutex
	conn  *nats.Conn
	ready chan struct{}
}

func NewRemoteConn(url string, name string) *RemoteConn {
	return &RemoteConn{
		url:   url,
		name:  name,
		ready: make(chan struct{}),
	}
}

func (r *RemoteConn) Start(ctx context.Context) error {
	conn, err := nats.Connect(r.url,
		nats.Name(r.name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.WarnContext(ctx, "nats disconnected", "url", r.url, "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.InfoContext(ctx, "nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to nats at %s: %w", r.url, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	close(r.ready)

	slog.InfoContext(ctx, "nats connected", "url", conn.ConnectedUrl())

	<-ctx.Done()
	if err := conn.Drain(); err != nil {
		slog.WarnContext(ctx, "draining nats connection", "error", err)
	}
	return nil
}

func (r *RemoteConn) Conn(ctx context.Context) (*nats.Conn, error) {
	return awaitConn(ctx, r.ready, &r.mu, &r.conn)
}

func awaitConn(ctx context.Context, ready <-chan struct{}, mu *sync.Mutex, conn **nats.Conn) (*nats.Conn, error) {
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for nats connection: %w", ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	if *conn == nil || (*conn).IsClosed() {
		return nil, ErrConnClosed
	}
	return *conn, nil
}
