// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package command maps command names to handlers.
//
// Handlers are registered at startup, before the gateway starts serving, and
// the table is read-only afterwards.
package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/filter"
	"github.com/tomtom215/switchboard/internal/wire"
)

// ErrPolicyViolation is wrapped by handler errors that must terminate the
// caller's connection with close code 1008 instead of producing a reply.
var ErrPolicyViolation = errors.New("policy violation")

// ErrRegistryFrozen is returned by Register after Freeze.
var ErrRegistryFrozen = errors.New("command registry is frozen")

// Conn is the view of a gateway connection available to handlers.
type Conn interface {
	ID() string
	Session() *auth.Session
	SetFilter(f *filter.Filter)
	Filter() *filter.Filter
}

// Handler processes one inbound message. Returning (nil, nil) yields a bare
// 200 reply. Returning a *wire.Error yields a reply with that code.
type Handler func(ctx context.Context, conn Conn, msg *wire.Message) (*wire.Message, error)

// DuplicateCommandError is returned when a name is registered twice.
type DuplicateCommandError struct {
	Name string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("command %q already registered", e.Name)
}

// UnknownCommandError is returned by Dispatch for unbound names.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// HandlerError wraps an error or panic raised by a handler.
type HandlerError struct {
	Command string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Registry is the name to handler table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to handler. A name that is already bound keeps its
// original handler and a *DuplicateCommandError is returned.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("command %q: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %q: %w", name, ErrRegistryFrozen)
	}
	if _, exists := r.handlers[name]; exists {
		return &DuplicateCommandError{Name: name}
	}
	r.handlers[name] = handler
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry) MustRegister(name string, handler Handler) {
	if err := r.Register(name, handler); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Has reports whether name is bound.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	_, ok := r.handlers[name]
	r.mu.RUnlock()
	return ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler bound to name.
//
// Unbound names fail with *UnknownCommandError. Handler failures, including
// panics, are wrapped in *HandlerError; *wire.Error values are returned as is.
func (r *Registry) Dispatch(ctx context.Context, name string, conn Conn, msg *wire.Message) (reply *wire.Message, err error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownCommandError{Name: name}
	}

	defer func() {
		if rec := recover(); rec != nil {
			reply = nil
			err = &HandlerError{Command: name, Err: fmt.Errorf("panic: %v\n%s", rec, debug.Stack())}
		}
	}()

	reply, err = handler(ctx, conn, msg)
	if err != nil {
		var coded *wire.Error
		if errors.As(err, &coded) || errors.Is(err, ErrPolicyViolation) {
			return nil, err
		}
		return nil, &HandlerError{Command: name, Err: err}
	}
	return reply, nil
}
