// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package filter implements per-connection broadcast filters.
//
// A client describes the broadcasts it wants as a structured query of
// field/operator/value clauses:
//
//	{"match": "all", "clauses": [
//	    {"field": "severity", "op": "in", "value": ["E", "F"]},
//	    {"field": "hostname", "op": "prefix", "value": "flp"}
//	]}
//
// The query is validated against a fixed grammar and compiled to an expr
// program. Only clause indexes are formatted into the program source; field
// values and operands are bound as variables at evaluation time, so client
// input never becomes code.
//
// Every clause requires its field to be present with a value of the
// operator's type. That includes the negated operators: "ne" and "nin" are
// false for a broadcast that lacks the field, so a filter on severity never
// lets through broadcasts that carry no severity at all. Use "exists" in an
// "any" query to opt into them.
package filter

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-json"
)

// Limits on client supplied queries.
const (
	MaxClauses     = 32
	MaxListValues  = 256
	MaxPatternSize = 256
)

// Match modes.
const (
	MatchAll = "all"
	MatchAny = "any"
)

// ErrInvalidFilter is wrapped by every validation failure.
var ErrInvalidFilter = errors.New("invalid filter")

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Clause is a single field/operator/value test.
type Clause struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value,omitempty"`
}

// Query is the client-facing filter description.
type Query struct {
	Match   string   `json:"match,omitempty"`
	Clauses []Clause `json:"clauses"`
}

type kind int

const (
	kindAny kind = iota
	kindString
	kindNumber
	kindBool
)

// operator describes how a clause is checked and rendered.
type operator struct {
	source    string // program fragment; %[1]d is the clause index
	fieldKind func(value interface{}) kind
	validate  func(value interface{}) error
}

var operators = map[string]operator{
	"eq":       {source: "f%[1]d == v%[1]d", fieldKind: anyKind, validate: scalar},
	"ne":       {source: "f%[1]d != v%[1]d", fieldKind: anyKind, validate: scalar},
	"lt":       {source: "f%[1]d < v%[1]d", fieldKind: kindOf, validate: ordered},
	"le":       {source: "f%[1]d <= v%[1]d", fieldKind: kindOf, validate: ordered},
	"gt":       {source: "f%[1]d > v%[1]d", fieldKind: kindOf, validate: ordered},
	"ge":       {source: "f%[1]d >= v%[1]d", fieldKind: kindOf, validate: ordered},
	"in":       {source: "f%[1]d in v%[1]d", fieldKind: anyKind, validate: scalarList},
	"nin":      {source: "not (f%[1]d in v%[1]d)", fieldKind: anyKind, validate: scalarList},
	"contains": {source: "f%[1]d contains v%[1]d", fieldKind: stringKind, validate: str},
	"prefix":   {source: "f%[1]d startsWith v%[1]d", fieldKind: stringKind, validate: str},
	"suffix":   {source: "f%[1]d endsWith v%[1]d", fieldKind: stringKind, validate: str},
	"matches":  {source: "f%[1]d matches v%[1]d", fieldKind: stringKind, validate: pattern},
	"exists":   {source: "h%[1]d", fieldKind: anyKind, validate: func(interface{}) error { return nil }},
}

// Filter is a compiled query. It is immutable and safe for concurrent use.
type Filter struct {
	query   Query
	kinds   []kind
	paths   [][]string
	program *vm.Program
}

// Parse builds a Filter from the "filter" field of a client frame. A nil
// value, or a query without clauses, yields (nil, nil) meaning "no filter".
func Parse(raw interface{}) (*Filter, error) {
	if raw == nil {
		return nil, nil
	}
	if _, ok := raw.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidFilter, raw)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var q Query
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return Compile(q)
}

// Compile validates q and compiles it. A query without clauses yields
// (nil, nil).
func Compile(q Query) (*Filter, error) {
	if len(q.Clauses) == 0 {
		return nil, nil
	}
	if len(q.Clauses) > MaxClauses {
		return nil, fmt.Errorf("%w: at most %d clauses allowed", ErrInvalidFilter, MaxClauses)
	}

	joiner := " && "
	switch q.Match {
	case "", MatchAll:
		q.Match = MatchAll
	case MatchAny:
		joiner = " || "
	default:
		return nil, fmt.Errorf("%w: match must be %q or %q", ErrInvalidFilter, MatchAll, MatchAny)
	}

	f := &Filter{
		query: q,
		kinds: make([]kind, len(q.Clauses)),
		paths: make([][]string, len(q.Clauses)),
	}
	parts := make([]string, len(q.Clauses))

	for i, c := range q.Clauses {
		if !fieldPattern.MatchString(c.Field) {
			return nil, fmt.Errorf("%w: clause %d: invalid field %q", ErrInvalidFilter, i, c.Field)
		}
		op, ok := operators[c.Op]
		if !ok {
			return nil, fmt.Errorf("%w: clause %d: unknown operator %q", ErrInvalidFilter, i, c.Op)
		}
		if err := op.validate(c.Value); err != nil {
			return nil, fmt.Errorf("%w: clause %d (%s %s): %v", ErrInvalidFilter, i, c.Field, c.Op, err)
		}
		f.kinds[i] = op.fieldKind(c.Value)
		f.paths[i] = strings.Split(c.Field, ".")
		parts[i] = fmt.Sprintf("(h%[1]d && ("+op.source+"))", i)
	}

	program, err := expr.Compile(strings.Join(parts, joiner), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	f.program = program
	return f, nil
}

// Query returns the query the filter was compiled from.
func (f *Filter) Query() Query {
	return f.query
}

// String renders the filter for logs and diagnostics.
func (f *Filter) String() string {
	parts := make([]string, len(f.query.Clauses))
	for i, c := range f.query.Clauses {
		parts[i] = fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
	}
	return f.query.Match + "(" + strings.Join(parts, "; ") + ")"
}

// Match evaluates the filter against a broadcast payload. A clause whose
// field is missing, or holds a value of the wrong type, is false. Evaluation
// errors are returned and the caller should treat them as no match.
func (f *Filter) Match(payload map[string]interface{}) (bool, error) {
	env := make(map[string]interface{}, 3*len(f.query.Clauses))
	for i, c := range f.query.Clauses {
		value, found := lookup(payload, f.paths[i])
		if found && f.kinds[i] != kindAny && kindOf(value) != f.kinds[i] {
			found = false
		}
		env[fmt.Sprintf("h%d", i)] = found
		env[fmt.Sprintf("f%d", i)] = value
		env[fmt.Sprintf("v%d", i)] = normalize(c.Value)
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter produced %T, want bool", out)
	}
	return matched, nil
}

func lookup(payload map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = payload
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return normalize(current), true
}

// normalize maps Go numeric types to float64 so that values produced by Go
// code compare equal to values decoded from JSON.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func kindOf(v interface{}) kind {
	switch normalize(v).(type) {
	case string:
		return kindString
	case float64:
		return kindNumber
	case bool:
		return kindBool
	default:
		return kindAny
	}
}

func anyKind(interface{}) kind    { return kindAny }
func stringKind(interface{}) kind { return kindString }

func scalar(v interface{}) error {
	if kindOf(v) == kindAny {
		return fmt.Errorf("value must be a string, number or boolean")
	}
	return nil
}

func ordered(v interface{}) error {
	if k := kindOf(v); k != kindString && k != kindNumber {
		return fmt.Errorf("value must be a string or number")
	}
	return nil
}

func str(v interface{}) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("value must be a string")
	}
	return nil
}

func pattern(v interface{}) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("value must be a string")
	}
	if len(s) > MaxPatternSize {
		return fmt.Errorf("pattern longer than %d bytes", MaxPatternSize)
	}
	if _, err := regexp.Compile(s); err != nil {
		return fmt.Errorf("bad pattern: %v", err)
	}
	return nil
}

func scalarList(v interface{}) error {
	list, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("value must be a list")
	}
	if len(list) == 0 || len(list) > MaxListValues {
		return fmt.Errorf("list must have between 1 and %d values", MaxListValues)
	}
	for _, item := range list {
		if err := scalar(item); err != nil {
			return err
		}
	}
	return nil
}
