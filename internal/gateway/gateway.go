// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/command"
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/wire"
)

// ErrNotRunning is returned by Publish when the run loop has stopped.
var ErrNotRunning = errors.New("gateway is not running")

// ShutdownReason identifies why the run loop stopped.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// TokenVerifier verifies and refreshes session tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Session, error)
	Refresh(token string) (string, *auth.Session, error)
}

// Authorizer decides whether an access level may invoke a command.
type Authorizer interface {
	CanInvoke(accessLevel, command string) (bool, error)
}

type unregistration struct {
	conn   *Connection
	reason string
}

// Gateway accepts operator sockets, dispatches their commands and fans out
// broadcasts.
type Gateway struct {
	cfg      config.GatewayConfig
	tokens   TokenVerifier
	registry *command.Registry
	authz    Authorizer
	upgrader websocket.Upgrader

	conns      map[*Connection]bool
	mu         sync.RWMutex
	register   chan *Connection
	unregister chan unregistration
	broadcast  chan *wire.Message

	runMu      sync.Mutex
	running    bool
	done       chan struct{}
	doneClosed bool
}

// New creates a Gateway and registers the built-in commands on registry.
// authorizer may be nil, in which case every command is allowed.
func New(cfg config.GatewayConfig, tokens TokenVerifier, registry *command.Registry, authorizer Authorizer) (*Gateway, error) {
	if tokens == nil {
		return nil, fmt.Errorf("gateway: token verifier is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("gateway: command registry is required")
	}
	applyDefaults(&cfg)

	g := &Gateway{
		cfg:        cfg,
		tokens:     tokens,
		registry:   registry,
		authz:      authorizer,
		conns:      make(map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan unregistration),
		broadcast:  make(chan *wire.Message, cfg.BroadcastBuffer),
		done:       make(chan struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      g.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}

	if err := registerBuiltins(registry); err != nil {
		return nil, err
	}
	return g, nil
}

func applyDefaults(cfg *config.GatewayConfig) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = 1024
	}
}

// Run owns the connection registry until ctx is canceled. It freezes the
// command registry, runs the liveness sweep every ping interval and closes
// every connection with 1001 on shutdown.
//
// Lifecycle events are drained before broadcasts so a message is never fanned
// out to a connection that has already been removed.
func (g *Gateway) Run(ctx context.Context) error {
	g.runMu.Lock()
	if g.running {
		g.runMu.Unlock()
		return fmt.Errorf("gateway: already running")
	}
	g.running = true
	if g.doneClosed {
		g.done = make(chan struct{})
		g.doneClosed = false
	}
	g.runMu.Unlock()

	defer func() {
		g.runMu.Lock()
		g.running = false
		close(g.done)
		g.doneClosed = true
		g.runMu.Unlock()
	}()

	g.registry.Freeze()

	sweep := time.NewTicker(g.cfg.PingInterval)
	defer sweep.Stop()

	logging.Info().
		Str("component", "gateway").
		Dur("ping_interval", g.cfg.PingInterval).
		Strs("commands", g.registry.Names()).
		Msg("gateway started")

	for {
		select {
		case <-ctx.Done():
			g.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-g.register:
			g.add(c)
			continue
		case u := <-g.unregister:
			g.remove(u.conn, u.reason, websocket.CloseNormalClosure, "")
			continue
		default:
		}

		select {
		case <-ctx.Done():
			g.shutdown(ctx)
			return ctx.Err()
		case c := <-g.register:
			g.add(c)
		case u := <-g.unregister:
			g.remove(u.conn, u.reason, websocket.CloseNormalClosure, "")
		case msg := <-g.broadcast:
			g.fanOut(msg)
		case <-sweep.C:
			g.sweep()
		}
	}
}

// Running reports whether the run loop is active.
func (g *Gateway) Running() bool {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	return g.running
}

func (g *Gateway) doneChan() chan struct{} {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	return g.done
}

func (g *Gateway) add(c *Connection) {
	g.mu.Lock()
	g.conns[c] = true
	total := len(g.conns)
	g.mu.Unlock()

	c.setState(StateActive)
	metrics.GatewayConnections.Inc()
	metrics.GatewayConnectionsOpened.Inc()
	c.log.Info().Int("total_connections", total).Msg("operator connected")
}

// remove deletes c from the registry and stops its write goroutine. It is a
// no-op for connections that are already gone.
func (g *Gateway) remove(c *Connection, reason string, code int, text string) {
	g.mu.Lock()
	if !g.conns[c] {
		g.mu.Unlock()
		return
	}
	delete(g.conns, c)
	total := len(g.conns)
	g.mu.Unlock()

	c.closeSend(code, text)
	recordClose(reason)
	c.log.Info().Str("reason", reason).Int("total_connections", total).Msg("operator disconnected")
}

// sorted returns the connections in connection order.
func (g *Gateway) sorted() []*Connection {
	g.mu.RLock()
	conns := make([]*Connection, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].seq < conns[j].seq
	})
	return conns
}

// fanOut delivers msg to every connection whose filter accepts it.
func (g *Gateway) fanOut(msg *wire.Message) {
	frame, err := wire.Encode(msg)
	if err != nil {
		logging.Error().Err(err).Str("command", msg.Command).Msg("failed to encode broadcast")
		return
	}

	for _, c := range g.sorted() {
		if f := c.Filter(); f != nil {
			ok, err := f.Match(msg.Payload)
			if err != nil {
				c.log.Debug().Err(err).Str("filter", f.String()).Msg("filter evaluation failed")
			}
			if err != nil || !ok {
				metrics.BroadcastsFiltered.Inc()
				continue
			}
		}

		if err := c.enqueue(frame); err != nil {
			metrics.BroadcastsDropped.Inc()
			c.log.Warn().Err(err).Str("command", msg.Command).Msg("send queue full, removing connection")
			g.remove(c, reasonSlowConsumer, websocket.CloseTryAgainLater, "send queue full")
			continue
		}
		metrics.BroadcastsDelivered.Inc()
	}
}

// sweep terminates connections that did not answer the previous ping and
// pings the rest.
func (g *Gateway) sweep() {
	for _, c := range g.sorted() {
		if !c.alive.Load() {
			c.log.Info().Msg("liveness check failed, terminating connection")
			c.setState(StateClosing)
			g.remove(c, reasonLiveness, websocket.CloseGoingAway, "")
			_ = c.conn.Close()
			continue
		}
		c.alive.Store(false)
		c.requestPing()
	}
}

// shutdown closes every connection with 1001 going away.
func (g *Gateway) shutdown(ctx context.Context) {
	conns := g.sorted()
	for _, c := range conns {
		g.remove(c, reasonShutdown, websocket.CloseGoingAway, "server shutting down")
	}

	reason := ShutdownReasonContextCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "gateway").
		Str("reason", string(reason)).
		Int("connections_closed", len(conns)).
		Msg("gateway stopped")
}

func (g *Gateway) registerConn(ctx context.Context, c *Connection) error {
	select {
	case g.register <- c:
		return nil
	case <-g.doneChan():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) unregisterConn(c *Connection, reason string) {
	select {
	case g.unregister <- unregistration{conn: c, reason: reason}:
	case <-g.doneChan():
	}
	c.setState(StateClosed)
}

// Broadcast queues msg for fan-out without blocking. When the queue is full
// the message is dropped with a warning.
func (g *Gateway) Broadcast(msg *wire.Message) {
	msg = prepareBroadcast(msg)
	select {
	case g.broadcast <- msg:
	default:
		metrics.BroadcastsDropped.Inc()
		logging.Warn().Str("command", msg.Command).Msg("broadcast queue full, dropping message")
	}
}

// Publish queues msg for fan-out, blocking until there is room, ctx is done
// or the gateway stops.
func (g *Gateway) Publish(ctx context.Context, msg *wire.Message) error {
	msg = prepareBroadcast(msg)
	select {
	case g.broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.doneChan():
		return ErrNotRunning
	}
}

func prepareBroadcast(msg *wire.Message) *wire.Message {
	out := msg.Clone()
	out.Broadcast = true
	out.Token = ""
	if out.Code == 0 {
		out.Code = wire.CodeOK
	}
	return out
}

// Stats is a snapshot of the connection registry.
type Stats struct {
	Connections int      `json:"connections"`
	Commands    []string `json:"commands"`
	QueuedLen   int      `json:"broadcast_queue_len"`
	QueueCap    int      `json:"broadcast_queue_cap"`
	Clients     []Info   `json:"clients"`
}

// Stats returns a snapshot of connected operators.
func (g *Gateway) Stats() Stats {
	conns := g.sorted()
	s := Stats{
		Connections: len(conns),
		Commands:    g.registry.Names(),
		QueuedLen:   len(g.broadcast),
		QueueCap:    cap(g.broadcast),
		Clients:     make([]Info, 0, len(conns)),
	}
	for _, c := range conns {
		s.Clients = append(s.Clients, c.info())
	}
	return s
}

// ConnectionCount returns the number of registered connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Ensure the casbin-backed enforcer satisfies Authorizer.
var _ Authorizer = (*authz.Enforcer)(nil)
