// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/wire"
)

// ErrCircuitOpen is returned by Publisher.Publish while the breaker rejects
// calls.
var ErrCircuitOpen = errors.New("relay circuit breaker is open")

// CircuitBreakerConfig configures the publish circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig trips after five consecutive failures and
// probes again after thirty seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "relay-publish",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// NewCircuitBreaker creates a breaker that logs state changes.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[interface{}] {
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// Publisher publishes broadcasts on the relay topic so that every gateway
// subscribed to the bus fans them out.
type Publisher struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[interface{}]
}

// NewPublisher wraps publisher with a circuit breaker.
func NewPublisher(publisher message.Publisher, topic string, cb CircuitBreakerConfig) *Publisher {
	return &Publisher{
		publisher: publisher,
		topic:     topic,
		breaker:   NewCircuitBreaker(cb),
	}
}

// Publish encodes msg and publishes it on the relay topic.
func (p *Publisher) Publish(ctx context.Context, msg *wire.Message) error {
	body, err := EncodeRelay(msg)
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	wm := message.NewMessage(watermill.NewUUID(), body)
	wm.SetContext(ctx)
	wm.Metadata.Set("command", msg.Command)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		wm.Metadata.Set("request_id", id)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(p.topic, wm)
	})
	switch {
	case err == nil:
		metrics.RelayPublishes.WithLabelValues("ok").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RelayPublishes.WithLabelValues("circuit_open").Inc()
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	default:
		metrics.RelayPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
}

// State returns the breaker state for diagnostics.
func (p *Publisher) State() string {
	return p.breaker.State().String()
}
