// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package wire defines the JSON envelope exchanged between the gateway and
// browser clients.
package wire

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Reply codes. They borrow HTTP semantics except 440, which announces a
// refreshed session token.
const (
	CodeOK             = 200
	CodeBadRequest     = 400
	CodeForbidden      = 403
	CodeUnknownCommand = 404
	CodeTokenRefreshed = 440
	CodeHandlerError   = 500
)

// Commands generated by the gateway itself.
const (
	CommandAuthed   = "authed"
	CommandNewToken = "new-token"
)

// Message is the unit of exchange on the socket.
//
// Token is only ever read from inbound frames and is never written back.
// Broadcast is server-side routing state and never serialized.
type Message struct {
	Code      int                    `json:"code,omitempty"`
	Command   string                 `json:"command,omitempty"`
	Token     string                 `json:"-"`
	Message   string                 `json:"message,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Broadcast bool                   `json:"-"`
}

// New returns a reply with the given code and command.
func New(code int, command string) *Message {
	return &Message{Code: code, Command: command}
}

// WithPayload sets the payload and returns m.
func (m *Message) WithPayload(payload map[string]interface{}) *Message {
	m.Payload = payload
	return m
}

// Clone returns a shallow copy. The payload map is shared.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// NewBroadcast builds a server-initiated message for fan-out.
func NewBroadcast(command string, payload map[string]interface{}) *Message {
	return &Message{Code: CodeOK, Command: command, Payload: payload, Broadcast: true}
}

// Errorf builds an error reply.
func Errorf(code int, command, format string, args ...interface{}) *Message {
	return &Message{Code: code, Command: command, Message: fmt.Sprintf(format, args...)}
}

// Encode serializes an outbound frame.
func Encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// MalformedFrameError reports an inbound frame that is not a JSON object or
// lacks command or token.
type MalformedFrameError struct {
	Reason string
	Err    error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Reason, e.Err)
	}
	return "malformed frame: " + e.Reason
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}

// DecodeInbound parses a client frame. Fields other than command and token
// are collected into the payload.
func DecodeInbound(data []byte) (*Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, &MalformedFrameError{Reason: "frame is not a JSON object"}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedFrameError{Reason: "invalid JSON", Err: err}
	}

	msg := &Message{}
	if err := requiredString(raw, "command", &msg.Command); err != nil {
		return nil, err
	}
	if err := requiredString(raw, "token", &msg.Token); err != nil {
		return nil, err
	}
	delete(raw, "command")
	delete(raw, "token")

	if len(raw) == 0 {
		return msg, nil
	}
	msg.Payload = make(map[string]interface{}, len(raw))
	for key, value := range raw {
		var v interface{}
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, &MalformedFrameError{Reason: "invalid field " + key, Err: err}
		}
		msg.Payload[key] = v
	}
	return msg, nil
}

func requiredString(raw map[string]json.RawMessage, key string, dst *string) error {
	value, ok := raw[key]
	if !ok {
		return &MalformedFrameError{Reason: "missing " + key}
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return &MalformedFrameError{Reason: key + " must be a string", Err: err}
	}
	if *dst == "" {
		return &MalformedFrameError{Reason: "empty " + key}
	}
	return nil
}

// Error is returned by command handlers to produce a coded reply without the
// handler failing, for example a 400 for an invalid argument.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// BadRequest returns a 400 reply error.
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}
