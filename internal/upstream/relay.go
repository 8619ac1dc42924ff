// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package upstream

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/wire"
)

// Relay forwards JSON objects published on a bus topic as broadcasts.
type Relay struct {
	subscriber     message.Subscriber
	topic          string
	defaultCommand string
	discardWarn    *rate.Sometimes
}

// NewRelay creates a relay for topic. Objects without a "command" field are
// broadcast with defaultCommand.
func NewRelay(subscriber message.Subscriber, topic, defaultCommand string) *Relay {
	return &Relay{
		subscriber:     subscriber,
		topic:          topic,
		defaultCommand: defaultCommand,
		discardWarn:    &rate.Sometimes{First: 5, Interval: 30 * time.Second},
	}
}

func (r *Relay) String() string {
	return "relay(" + r.topic + ")"
}

// Run subscribes and forwards until ctx is canceled or emit fails. Messages
// are acked after emission; a message whose emission fails is nacked.
func (r *Relay) Run(ctx context.Context, emit EmitFunc) error {
	log := logging.WithComponent("relay")

	messages, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.topic, err)
	}
	log.Info().Str("topic", r.topic).Msg("relay subscribed")
	metrics.SetUpstreamConnected("relay", true)
	defer metrics.SetUpstreamConnected("relay", false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: subscription to %s ended", ErrUpstreamClosed, r.topic)
			}

			out, err := DecodeRelay(msg.Payload, r.defaultCommand)
			if err != nil {
				metrics.RecordUpstream("relay", false)
				r.discardWarn.Do(func() {
					log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("discarding relay message")
				})
				msg.Ack()
				continue
			}

			if err := emit(ctx, out); err != nil {
				msg.Nack()
				return err
			}
			msg.Ack()
			metrics.RecordUpstream("relay", true)
		}
	}
}

// DecodeRelay turns a bus payload into a broadcast.
//
// The payload must be a JSON object. A string "command" field selects the
// broadcast command. When the object carries a "payload" object it is used
// as the broadcast payload together with an optional "message" string;
// otherwise every remaining field forms the payload.
func DecodeRelay(data []byte, defaultCommand string) (*wire.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, &ParseError{Source: "relay", Reason: "payload is not a JSON object"}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &ParseError{Source: "relay", Reason: "invalid JSON", Err: err}
	}

	command := defaultCommand
	if c, ok := obj["command"].(string); ok && c != "" {
		command = c
	}
	delete(obj, "command")

	if inner, ok := obj["payload"].(map[string]interface{}); ok {
		out := wire.NewBroadcast(command, inner)
		if text, ok := obj["message"].(string); ok {
			out.Message = text
		}
		return out, nil
	}
	if len(obj) == 0 {
		obj = nil
	}
	return wire.NewBroadcast(command, obj), nil
}

// EncodeRelay is the inverse of DecodeRelay for messages published by this
// process.
func EncodeRelay(msg *wire.Message) ([]byte, error) {
	envelope := map[string]interface{}{
		"command": msg.Command,
		"payload": msg.Payload,
	}
	if msg.Payload == nil {
		envelope["payload"] = map[string]interface{}{}
	}
	if msg.Message != "" {
		envelope["message"] = msg.Message
	}
	return json.Marshal(envelope)
}
