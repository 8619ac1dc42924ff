// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/command"
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/wire"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

const testTimeout = 2 * time.Second

// fakeTokens maps literal token strings to outcomes.
type fakeTokens struct {
	mu        sync.Mutex
	refreshes int
}

func sessionFor(access string) *auth.Session {
	now := time.Now()
	return &auth.Session{
		SubjectID:   "7",
		Username:    access + "-user",
		AccessLevel: access,
		IssuedAt:    now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
}

func expiredErr() error {
	return &auth.InvalidTokenError{Reason: "expired", Err: fmt.Errorf("%w: token is expired", auth.ErrTokenExpired)}
}

func (f *fakeTokens) Verify(token string) (*auth.Session, error) {
	switch token {
	case "guest", "operator", "admin":
		return sessionFor(token), nil
	case "expired", "too-old":
		return nil, expiredErr()
	default:
		return nil, &auth.InvalidTokenError{Reason: "signature is invalid"}
	}
}

func (f *fakeTokens) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeTokens) Refresh(token string) (string, *auth.Session, error) {
	switch token {
	case "expired":
		f.mu.Lock()
		f.refreshes++
		f.mu.Unlock()
		return "operator", sessionFor("operator"), nil
	case "too-old":
		return "", nil, &auth.InvalidTokenError{Reason: "max age exceeded", Err: auth.ErrTokenTooOld}
	default:
		return "", nil, &auth.InvalidTokenError{Reason: "signature is invalid"}
	}
}

type testGateway struct {
	gw     *Gateway
	server *httptest.Server
	cancel context.CancelFunc
	done   chan error
}

func testRegistry() *command.Registry {
	r := command.NewRegistry()
	r.MustRegister("echo", func(_ context.Context, _ command.Conn, msg *wire.Message) (*wire.Message, error) {
		return wire.New(wire.CodeOK, "").WithPayload(msg.Payload), nil
	})
	r.MustRegister("rename", func(context.Context, command.Conn, *wire.Message) (*wire.Message, error) {
		return wire.New(wire.CodeOK, "renamed"), nil
	})
	r.MustRegister("boom", func(context.Context, command.Conn, *wire.Message) (*wire.Message, error) {
		return nil, errors.New("kaboom")
	})
	r.MustRegister("panic", func(context.Context, command.Conn, *wire.Message) (*wire.Message, error) {
		panic("handler bug")
	})
	r.MustRegister("bad-arg", func(context.Context, command.Conn, *wire.Message) (*wire.Message, error) {
		return nil, wire.BadRequest("missing argument %q", "run")
	})
	r.MustRegister("slow", func(ctx context.Context, _ command.Conn, msg *wire.Message) (*wire.Message, error) {
		time.Sleep(50 * time.Millisecond)
		return wire.New(wire.CodeOK, "").WithPayload(msg.Payload), nil
	})
	return r
}

func startGateway(t *testing.T, cfg config.GatewayConfig) *testGateway {
	t.Helper()

	enforcer, err := authz.NewEnforcer(authz.Config{})
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	gw, err := New(cfg, &fakeTokens{}, testRegistry(), enforcer)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tg := &testGateway{gw: gw, cancel: cancel, done: make(chan error, 1)}
	go func() { tg.done <- gw.Run(ctx) }()

	deadline := time.Now().Add(testTimeout)
	for !gw.Running() {
		if time.Now().After(deadline) {
			t.Fatal("gateway did not start")
		}
		time.Sleep(time.Millisecond)
	}

	tg.server = httptest.NewServer(gw)
	t.Cleanup(tg.stop)
	return tg
}

func (tg *testGateway) stop() {
	tg.cancel()
	select {
	case <-tg.done:
	case <-time.After(testTimeout):
	}
	tg.server.Close()
}

// dialRaw opens a socket without consuming any frame.
func dialRaw(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dial opens an authenticated socket, consumes the authed frame and waits
// for the run loop to register it.
func dial(t *testing.T, tg *testGateway, token string) *websocket.Conn {
	t.Helper()
	before := tg.gw.ConnectionCount()
	conn := dialRaw(t, tg.server, token)
	// Cleanups run last-in first-out, so this runs before dialRaw's close.
	// Wait for the unregistration so the next caller starts from a settled
	// count.
	t.Cleanup(func() {
		_ = conn.Close()
		deadline := time.Now().Add(testTimeout)
		for tg.gw.Running() && tg.gw.ConnectionCount() > before && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	})

	f := readFrame(t, conn)
	if f.Code != wire.CodeOK || f.Command != wire.CommandAuthed {
		t.Fatalf("expected authed frame, got %+v", f)
	}
	waitForConnections(t, tg.gw, before+1)
	return conn
}

type frame struct {
	Code    int                    `json:"code"`
	Command string                 `json:"command"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return f
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
}

// expectClose reads until the peer closes and checks the close code.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close %d, got %v", code, err)
		}
		if ce.Code != code {
			t.Fatalf("expected close code %d, got %d (%s)", code, ce.Code, ce.Text)
		}
		return
	}
}

func waitForConnections(t *testing.T, gw *Gateway, n int) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for gw.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", n, gw.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandshake(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"invalid token", "forged"},
		{"expired token", "expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialRaw(t, tg.server, tt.token)
			expectClose(t, conn, websocket.ClosePolicyViolation)
		})
	}

	if n := tg.gw.ConnectionCount(); n != 0 {
		t.Errorf("rejected handshakes registered %d connections", n)
	}

	conn := dial(t, tg, "guest")
	send(t, conn, map[string]interface{}{"command": "whoami", "token": "guest"})
	if f := readFrame(t, conn); f.Code != wire.CodeOK || f.Payload["username"] != "guest-user" {
		t.Errorf("whoami after handshake = %+v", f)
	}
}

func TestFrames_ProcessedInOrder(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})
	conn := dial(t, tg, "operator")

	const n = 20
	for i := 0; i < n; i++ {
		cmd := "echo"
		if i%3 == 0 {
			cmd = "slow"
		}
		send(t, conn, map[string]interface{}{"command": cmd, "token": "operator", "seq": i})
	}
	for i := 0; i < n; i++ {
		f := readFrame(t, conn)
		if f.Code != wire.CodeOK {
			t.Fatalf("frame %d: code %d", i, f.Code)
		}
		if seq, _ := f.Payload["seq"].(float64); int(seq) != i {
			t.Fatalf("frame %d: got seq %v", i, f.Payload["seq"])
		}
	}
}

func TestFrames_Replies(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})

	tests := []struct {
		name        string
		token       string
		command     string
		wantCode    int
		wantCommand string
		wantMessage string
	}{
		{"echo defaults command", "operator", "echo", wire.CodeOK, "echo", ""},
		{"handler sets command", "operator", "rename", wire.CodeOK, "renamed", ""},
		{"unknown command", "operator", "nope", wire.CodeUnknownCommand, "nope", `unknown command "nope"`},
		{"unknown before access check", "guest", "nope", wire.CodeUnknownCommand, "nope", `unknown command "nope"`},
		{"forbidden", "guest", "echo", wire.CodeForbidden, "echo", ""},
		{"handler error", "operator", "boom", wire.CodeHandlerError, "boom", ""},
		{"handler panic", "operator", "panic", wire.CodeHandlerError, "panic", ""},
		{"coded handler error", "operator", "bad-arg", wire.CodeBadRequest, "bad-arg", `missing argument "run"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, tg, tt.token)
			send(t, conn, map[string]interface{}{"command": tt.command, "token": tt.token})
			f := readFrame(t, conn)
			if f.Code != tt.wantCode || f.Command != tt.wantCommand {
				t.Errorf("got code=%d command=%q, want code=%d command=%q", f.Code, f.Command, tt.wantCode, tt.wantCommand)
			}
			if tt.wantMessage != "" && f.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", f.Message, tt.wantMessage)
			}

			// The connection survives every reply.
			send(t, conn, map[string]interface{}{"command": "whoami", "token": tt.token})
			if f := readFrame(t, conn); f.Command != "whoami" || f.Code != wire.CodeOK {
				t.Errorf("connection unusable after reply: %+v", f)
			}
		})
	}
}

func TestFrames_ProtocolViolations(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})

	tests := []struct {
		name  string
		frame string
	}{
		{"not json", "hello"},
		{"json array", `["echo"]`},
		{"missing token", `{"command":"echo"}`},
		{"missing command", `{"token":"operator"}`},
		{"numeric command", `{"command":5,"token":"operator"}`},
		{"invalid token", `{"command":"echo","token":"forged"}`},
		{"refresh window exceeded", `{"command":"echo","token":"too-old"}`},
		{"invalid filter", `{"command":"filter","token":"operator","filter":{"clauses":[{"field":"a","op":"eval","value":"1"}]}}`},
		{"filter code injection", `{"command":"filter","token":"operator","filter":{"clauses":[{"field":"a; panic()","op":"eq","value":1}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, tg, "operator")
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatalf("write: %v", err)
			}
			expectClose(t, conn, websocket.ClosePolicyViolation)
		})
	}
	waitForConnections(t, tg.gw, 0)
}

func TestFrames_ExpiredTokenRefreshed(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})
	conn := dial(t, tg, "operator")

	send(t, conn, map[string]interface{}{"command": "echo", "token": "expired", "n": 1})

	notice := readFrame(t, conn)
	if notice.Code != wire.CodeTokenRefreshed || notice.Command != wire.CommandNewToken {
		t.Fatalf("expected 440 new-token first, got %+v", notice)
	}
	if notice.Payload["newtoken"] != "operator" {
		t.Errorf("newtoken = %v", notice.Payload["newtoken"])
	}

	reply := readFrame(t, conn)
	if reply.Code != wire.CodeOK || reply.Command != "echo" {
		t.Errorf("expected echo reply after notice, got %+v", reply)
	}

	if refreshes := tg.gw.tokens.(*fakeTokens).refreshCount(); refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
}

func TestBroadcast_Filtered(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})
	filtered := dial(t, tg, "guest")
	all := dial(t, tg, "guest")

	send(t, filtered, map[string]interface{}{
		"command": "filter",
		"token":   "guest",
		"filter": map[string]interface{}{
			"match":   "all",
			"clauses": []map[string]interface{}{{"field": "severity", "op": "eq", "value": "E"}},
		},
	})
	if f := readFrame(t, filtered); f.Code != wire.CodeOK || f.Command != "filter" || f.Payload != nil {
		t.Fatalf("filter reply = %+v, want bare 200", f)
	}

	ctx := context.Background()
	for _, sev := range []string{"I", "E", "W"} {
		msg := wire.NewBroadcast("live-log", map[string]interface{}{"severity": sev})
		if err := tg.gw.Publish(ctx, msg); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	tg.gw.Broadcast(wire.NewBroadcast("run-state", map[string]interface{}{"severity": "E", "run": "42"}))

	if f := readFrame(t, filtered); f.Payload["severity"] != "E" || f.Command != "live-log" {
		t.Errorf("filtered connection got %+v", f)
	}
	if f := readFrame(t, filtered); f.Command != "run-state" {
		t.Errorf("filtered connection got %+v", f)
	}

	for _, want := range []string{"I", "E", "W", "E"} {
		f := readFrame(t, all)
		if f.Payload["severity"] != want {
			t.Errorf("unfiltered connection got %v, want %s", f.Payload["severity"], want)
		}
		if f.Code != wire.CodeOK {
			t.Errorf("broadcast code = %d", f.Code)
		}
	}
}

func TestBroadcast_FilterCleared(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})
	conn := dial(t, tg, "guest")

	send(t, conn, map[string]interface{}{
		"command": "filter",
		"token":   "guest",
		"filter": map[string]interface{}{
			"clauses": []map[string]interface{}{{"field": "severity", "op": "eq", "value": "E"}},
		},
	})
	readFrame(t, conn)

	send(t, conn, map[string]interface{}{"command": "filter", "token": "guest", "filter": nil})
	if f := readFrame(t, conn); f.Code != wire.CodeOK {
		t.Fatalf("clearing filter: %+v", f)
	}

	if err := tg.gw.Publish(context.Background(), wire.NewBroadcast("live-log", map[string]interface{}{"severity": "I"})); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if f := readFrame(t, conn); f.Payload["severity"] != "I" {
		t.Errorf("expected unfiltered delivery, got %+v", f)
	}
}

func TestShutdown_ClosesGoingAway(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})
	conn := dial(t, tg, "guest")

	tg.cancel()
	expectClose(t, conn, websocket.CloseGoingAway)

	select {
	case err := <-tg.done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
		tg.done <- err
	case <-time.After(testTimeout):
		t.Fatal("Run did not return")
	}

	if err := tg.gw.Publish(context.Background(), wire.NewBroadcast("x", nil)); err != nil && !errors.Is(err, ErrNotRunning) {
		t.Errorf("Publish after shutdown = %v", err)
	}
}

func TestSweep_TerminatesUnresponsive(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{PingInterval: 40 * time.Millisecond})

	// The responsive client keeps reading, so the dialer answers pings.
	responsive := dial(t, tg, "guest")
	go func() {
		for {
			if _, _, err := responsive.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// The silent client never reads, so pings go unanswered.
	dial(t, tg, "guest")

	waitForConnections(t, tg.gw, 1)
	time.Sleep(200 * time.Millisecond)
	if n := tg.gw.ConnectionCount(); n != 1 {
		t.Errorf("responsive connection was swept: %d connections", n)
	}
}

func TestStats(t *testing.T) {
	tg := startGateway(t, config.GatewayConfig{})
	conn := dial(t, tg, "admin")

	send(t, conn, map[string]interface{}{
		"command": "filter",
		"token":   "admin",
		"filter": map[string]interface{}{
			"clauses": []map[string]interface{}{{"field": "run", "op": "exists"}},
		},
	})
	readFrame(t, conn)

	stats := tg.gw.Stats()
	if stats.Connections != 1 || len(stats.Clients) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	client := stats.Clients[0]
	if client.Username != "admin-user" || client.Access != "admin" || !client.FilterSet || client.State != "active" {
		t.Errorf("client info = %+v", client)
	}
	for _, name := range []string{"filter", "unfilter", "whoami", "echo"} {
		found := false
		for _, c := range stats.Commands {
			found = found || c == name
		}
		if !found {
			t.Errorf("command %q missing from stats", name)
		}
	}
}

func TestServeHTTP_NotRunning(t *testing.T) {
	gw, err := New(config.GatewayConfig{}, &fakeTokens{}, command.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=guest", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(config.GatewayConfig{}, nil, command.NewRegistry(), nil); err == nil {
		t.Error("expected error for nil verifier")
	}
	if _, err := New(config.GatewayConfig{}, &fakeTokens{}, nil, nil); err == nil {
		t.Error("expected error for nil registry")
	}

	r := command.NewRegistry()
	r.MustRegister(CommandWhoami, whoamiCommand)
	_, err := New(config.GatewayConfig{}, &fakeTokens{}, r, nil)
	var dup *command.DuplicateCommandError
	if !errors.As(err, &dup) || dup.Name != CommandWhoami {
		t.Errorf("expected duplicate whoami, got %v", err)
	}
}

func TestPublish_Backpressure(t *testing.T) {
	gw, err := New(config.GatewayConfig{BroadcastBuffer: 1}, &fakeTokens{}, command.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := gw.Publish(context.Background(), wire.NewBroadcast("a", nil)); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := gw.Publish(ctx, wire.NewBroadcast("b", nil)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish on full queue = %v, want deadline exceeded", err)
	}

	// Broadcast never blocks.
	gw.Broadcast(wire.NewBroadcast("c", nil))
	if got := len(gw.broadcast); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty list allows all", nil, "https://evil.example", true},
		{"wildcard", []string{"*"}, "https://a.example", true},
		{"exact match", []string{"https://ops.example"}, "https://ops.example", true},
		{"case insensitive", []string{"https://ops.example"}, "https://OPS.example", true},
		{"not listed", []string{"https://ops.example"}, "https://evil.example", false},
		{"missing origin", []string{"https://ops.example"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &Gateway{cfg: config.GatewayConfig{AllowedOrigins: tt.allowed}}
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := gw.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
