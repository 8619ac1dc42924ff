// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package upstream

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// CommandLiveLog is the broadcast command of live log records.
const CommandLiveLog = "live-log"

// liveLogFields lists the positional fields of each record version.
var liveLogFields = map[string][]string{
	"1.4": {
		"severity", "level", "timestamp", "hostname", "rolename", "pid",
		"username", "system", "facility", "detector", "partition", "run",
		"errcode", "errline", "errsource", "message",
	},
}

// liveLogIntFields are converted to integers; every other field stays a string.
var liveLogIntFields = map[string]bool{
	"pid":     true,
	"errcode": true,
}

// ParseLiveLog parses one "*<version>#<f0>#...#<fN>\n" record. Empty fields
// are omitted from the result. A carriage return before the newline is
// tolerated.
func ParseLiveLog(line []byte) (map[string]interface{}, error) {
	if len(line) == 0 || line[0] != '*' {
		return nil, &ParseError{Source: "livelog", Reason: "record does not start with '*'"}
	}
	if line[len(line)-1] != '\n' {
		return nil, &ParseError{Source: "livelog", Reason: "record is not newline terminated"}
	}

	body := bytes.TrimSuffix(line[1:len(line)-1], []byte{'\r'})
	parts := strings.Split(string(body), "#")

	fields, ok := liveLogFields[parts[0]]
	if !ok {
		return nil, &ParseError{Source: "livelog", Reason: fmt.Sprintf("unknown version %q", parts[0])}
	}
	values := parts[1:]
	if len(values) != len(fields) {
		return nil, &ParseError{
			Source: "livelog",
			Reason: fmt.Sprintf("version %s expects %d fields, got %d", parts[0], len(fields), len(values)),
		}
	}

	record := make(map[string]interface{}, len(fields))
	for i, name := range fields {
		value := values[i]
		if value == "" {
			continue
		}
		if liveLogIntFields[name] {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, &ParseError{Source: "livelog", Reason: "field " + name + " is not an integer", Err: err}
			}
			record[name] = n
			continue
		}
		record[name] = value
	}
	return record, nil
}
