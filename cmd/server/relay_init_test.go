// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/supervisor"
	"github.com/tomtom215/switchboard/internal/upstream"
	"github.com/tomtom215/switchboard/internal/wire"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []*wire.Message
}

func (s *recordingSink) Publish(_ context.Context, msg *wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func memoryRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		Enabled:        true,
		URL:            upstream.MemoryURL,
		Topic:          "switchboard.test",
		DefaultCommand: "relay",
	}
}

func TestRelayComponents_Nil(t *testing.T) {
	var c *RelayComponents

	if c.Publisher() != nil {
		t.Error("Publisher() should be nil for nil components")
	}
	if err := c.Ready(context.Background()); err != nil {
		t.Errorf("Ready() = %v, want nil", err)
	}
	// Must not panic.
	c.Close(context.Background())
	c.AddToSupervisor(nil, nil)
}

func TestInitRelay_Disabled(t *testing.T) {
	c, err := InitRelay(config.RelayConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitRelay: %v", err)
	}
	if c != nil {
		t.Error("disabled relay should return nil components")
	}
}

func TestInitRelay_MemoryBus(t *testing.T) {
	c, err := InitRelay(memoryRelayConfig())
	if err != nil {
		t.Fatalf("InitRelay: %v", err)
	}
	defer c.Close(context.Background())

	if c.Publisher() == nil {
		t.Fatal("Publisher() is nil")
	}
	if err := c.Ready(context.Background()); err != nil {
		t.Errorf("Ready() = %v, want nil without embedded server", err)
	}
}

func TestRelayComponents_PublishReachesSink(t *testing.T) {
	c, err := InitRelay(memoryRelayConfig())
	if err != nil {
		t.Fatalf("InitRelay: %v", err)
	}
	defer c.Close(context.Background())

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	sink := &recordingSink{}
	c.AddToSupervisor(tree, sink)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	// The relay subscribes asynchronously; publish until the sink sees one.
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("relayed message never reached the sink")
		}
		msg := wire.NewBroadcast("run-state", map[string]interface{}{"run": "7"})
		if err := c.Publisher().Publish(ctx, msg); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestInitRelay_EmbeddedServer(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a NATS server")
	}

	cfg := memoryRelayConfig()
	cfg.URL = ""
	cfg.EmbeddedServer = true
	cfg.Host = "127.0.0.1"
	cfg.Port = -1

	c, err := InitRelay(cfg)
	if err != nil {
		t.Fatalf("InitRelay: %v", err)
	}
	if err := c.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() = %v", err)
	}

	c.Close(context.Background())
	if err := c.Ready(context.Background()); !errors.Is(err, errRelayServerDown) {
		t.Errorf("Ready() after Close = %v, want %v", err, errRelayServerDown)
	}
}
