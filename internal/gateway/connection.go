// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/filter"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons recorded on the connections-closed metric.
const (
	reasonRemote       = "remote"
	reasonPolicy       = "policy_violation"
	reasonLiveness     = "liveness"
	reasonSlowConsumer = "slow_consumer"
	reasonShutdown     = "shutdown"
)

// socket is the subset of *websocket.Conn used by a connection.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// maxCloseReason is the longest reason that fits a close frame.
const maxCloseReason = 123

// connSeq orders connections for deterministic broadcast iteration.
var connSeq atomic.Uint64

// errSendQueueFull is returned by enqueue when the peer is not draining.
var errSendQueueFull = errors.New("send queue full")

// Connection is one accepted, authenticated socket.
//
// The read goroutine processes frames in receipt order and is the only
// producer of replies. The write goroutine is the only writer of data frames.
type Connection struct {
	id          string
	seq         uint64
	gw          *Gateway
	conn        socket
	connectedAt time.Time
	log         zerolog.Logger

	alive atomic.Bool
	state atomic.Int32

	// sendMu guards send against enqueue after close.
	sendMu     sync.Mutex
	send       chan []byte
	sendClosed bool
	ping       chan struct{}

	// closeCode is written by the run loop before send is closed and read
	// by the write goroutine after it observes the close.
	closeCode   int
	closeReason string

	mu      sync.RWMutex
	filter  *filter.Filter
	session *auth.Session
}

func newConnection(gw *Gateway, conn socket, session *auth.Session) *Connection {
	id := uuid.New().String()
	c := &Connection{
		id:          id,
		seq:         connSeq.Add(1),
		gw:          gw,
		conn:        conn,
		connectedAt: time.Now(),
		log:         logging.ForConnection(id, session.Username),
		send:        make(chan []byte, gw.cfg.SendBuffer),
		ping:        make(chan struct{}, 1),
		closeCode:   websocket.CloseNormalClosure,
		session:     session,
	}
	c.alive.Store(true)
	c.setState(StateAuthenticated)
	return c
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// Session returns the identity carried by the most recently verified token.
func (c *Connection) Session() *auth.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Connection) setSession(s *auth.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// SetFilter replaces the broadcast filter. nil clears it.
func (c *Connection) SetFilter(f *filter.Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// Filter returns the current broadcast filter, or nil.
func (c *Connection) Filter() *filter.Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// State returns the lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// enqueue queues an encoded frame for the write goroutine without blocking.
func (c *Connection) enqueue(frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendQueueFull
	}
}

// closeSend stops the write goroutine after it flushes queued frames and
// writes a close frame with code. Only the run loop calls it.
func (c *Connection) closeSend(code int, reason string) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}
	c.closeCode = code
	c.closeReason = reason
	c.sendClosed = true
	close(c.send)
}

// requestPing asks the write goroutine to send a transport ping.
func (c *Connection) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// terminate closes the socket with code immediately, from any goroutine.
func (c *Connection) terminate(code int, reason string) {
	if State(c.state.Swap(int32(StateClosing))) >= StateClosing {
		return
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	deadline := time.Now().Add(c.gw.cfg.WriteWait)
	if err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		c.log.Debug().Err(err).Msg("failed to write close frame")
	}
	_ = c.conn.Close()
}

// readPump reads frames until the socket fails, then unregisters.
func (c *Connection) readPump() {
	ctx, cancel := context.WithCancel(logging.ContextWithLogger(context.Background(), c.log))
	reason := reasonRemote
	defer func() {
		cancel()
		c.gw.unregisterConn(c, reason)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.gw.cfg.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) &&
				c.State() < StateClosing {
				c.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		if err := c.gw.handleFrame(ctx, c, data); err != nil {
			var ce *closeError
			if errors.As(err, &ce) {
				reason = ce.metricReason
				c.log.Warn().Err(ce.Err).Int("close_code", ce.Code).Str("reason", ce.Reason).Msg("closing connection")
				c.terminate(ce.Code, ce.Reason)
				return
			}
			c.log.Error().Err(err).Msg("frame processing failed")
			c.terminate(websocket.CloseInternalServerErr, "internal error")
			return
		}
	}
}

// writePump drains the send queue and writes pings on request.
func (c *Connection) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				c.sendMu.Lock()
				code, reason := c.closeCode, c.closeReason
				c.sendMu.Unlock()
				c.terminate(code, reason)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if c.State() < StateClosing {
					c.log.Debug().Err(err).Msg("failed to write frame")
				}
				return
			}

		case <-c.ping:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Info is a point-in-time summary of a connection.
type Info struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Access      string    `json:"access"`
	State       string    `json:"state"`
	FilterSet   bool      `json:"filter_set"`
	Filter      string    `json:"filter,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

func (c *Connection) info() Info {
	session := c.Session()
	f := c.Filter()
	i := Info{
		ID:          c.id,
		Username:    session.Username,
		Access:      session.AccessLevel,
		State:       c.State().String(),
		FilterSet:   f != nil,
		ConnectedAt: c.connectedAt.UTC(),
	}
	if f != nil {
		i.Filter = f.String()
	}
	return i
}

func recordClose(reason string) {
	metrics.GatewayConnections.Dec()
	metrics.GatewayConnectionsClosed.WithLabelValues(reason).Inc()
}
