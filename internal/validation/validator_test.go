// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package validation

import (
	"strings"
	"testing"
)

type eventRequest struct {
	Command string                 `json:"command" validate:"required,command"`
	Payload map[string]interface{} `json:"payload" validate:"omitempty,max=2"`
	Message string                 `json:"message,omitempty" validate:"max=10"`
	Level   string                 `json:"level" validate:"omitempty,oneof=info warn"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     eventRequest
		wantField string
		wantTag   string
		wantMsg   string
	}{
		{
			name:  "valid",
			input: eventRequest{Command: "run-state", Payload: map[string]interface{}{"run": 1}},
		},
		{
			name:  "dotted command",
			input: eventRequest{Command: "daq.alarm_v2"},
		},
		{
			name:      "missing command",
			input:     eventRequest{},
			wantField: "command",
			wantTag:   "required",
			wantMsg:   "command is required",
		},
		{
			name:      "uppercase command",
			input:     eventRequest{Command: "RunState"},
			wantField: "command",
			wantTag:   "command",
			wantMsg:   "command must be a lowercase command name",
		},
		{
			name:      "command with space",
			input:     eventRequest{Command: "run state"},
			wantField: "command",
			wantTag:   "command",
		},
		{
			name:      "command too long",
			input:     eventRequest{Command: "a" + strings.Repeat("b", 64)},
			wantField: "command",
			wantTag:   "command",
		},
		{
			name:      "payload too large",
			input:     eventRequest{Command: "x", Payload: map[string]interface{}{"a": 1, "b": 2, "c": 3}},
			wantField: "payload",
			wantTag:   "max",
			wantMsg:   "payload must be at most 2 entries",
		},
		{
			name:      "message too long",
			input:     eventRequest{Command: "x", Message: "this is far too long"},
			wantField: "message",
			wantTag:   "max",
			wantMsg:   "message must be at most 10 characters",
		},
		{
			name:      "oneof",
			input:     eventRequest{Command: "x", Level: "debug"},
			wantField: "level",
			wantTag:   "oneof",
			wantMsg:   "level must be one of: info warn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("got %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
			if tt.wantMsg != "" && errs[0].Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", errs[0].Error(), tt.wantMsg)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		verr := ValidateStruct(&eventRequest{})
		apiErr := verr.ToAPIError()
		if apiErr.Code != CodeValidationError {
			t.Errorf("Code = %q", apiErr.Code)
		}
		if apiErr.Details["field"] != "command" {
			t.Errorf("Details = %v", apiErr.Details)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		verr := ValidateStruct(&eventRequest{Message: "this is far too long"})
		apiErr := verr.ToAPIError()
		if !strings.Contains(apiErr.Message, "command is required") ||
			!strings.Contains(apiErr.Message, "message must be at most 10 characters") {
			t.Errorf("Message = %q", apiErr.Message)
		}
		fields, ok := apiErr.Details["fields"].([]map[string]interface{})
		if !ok || len(fields) != 2 {
			t.Errorf("Details = %v", apiErr.Details)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := (&RequestValidationError{}).ToAPIError().Message; got != "validation failed" {
			t.Errorf("Message = %q", got)
		}
	})
}

func TestValidateStruct_NonStruct(t *testing.T) {
	verr := ValidateStruct("not a struct")
	if verr == nil || verr.Errors()[0].Field() != "unknown" {
		t.Errorf("expected unknown-field error, got %v", verr)
	}
}
