// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package upstream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/wire"
)

// maxLiveLogRecord bounds a single record, newline included.
const maxLiveLogRecord = 64 * 1024

// LiveLog reads the line-oriented TCP log feed and emits each valid record
// as a "live-log" broadcast.
//
// The feed is not reconnected: when the producer closes the stream or the
// connection breaks, Run returns ErrUpstreamClosed and the source stays
// down until restart.
type LiveLog struct {
	addr string
	dial func(ctx context.Context, network, address string) (net.Conn, error)

	// discardWarn samples warnings for malformed records.
	discardWarn *rate.Sometimes
}

// NewLiveLog creates a feed client for cfg.Host:cfg.Port.
func NewLiveLog(cfg config.LiveLogConfig) *LiveLog {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	return &LiveLog{
		addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		dial:        d.DialContext,
		discardWarn: &rate.Sometimes{First: 5, Interval: 30 * time.Second},
	}
}

func (l *LiveLog) String() string {
	return "livelog(" + l.addr + ")"
}

// Run connects and forwards records until ctx is canceled, the producer
// closes the stream, or emit fails.
func (l *LiveLog) Run(ctx context.Context, emit EmitFunc) error {
	log := logging.WithComponent("livelog")

	conn, err := l.dial(ctx, "tcp", l.addr)
	if err != nil {
		if unreachable(err) {
			return fmt.Errorf("%w: %s: %w", ErrUpstreamUnreachable, l.addr, err)
		}
		return fmt.Errorf("dial %s: %w", l.addr, err)
	}
	log.Info().Str("addr", l.addr).Msg("connected to live log feed")
	metrics.SetUpstreamConnected("livelog", true)
	defer metrics.SetUpstreamConnected("livelog", false)

	// Unblock the reader on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLiveLogRecord)
	scanner.Split(newRecordSplitter(maxLiveLogRecord).split)

	for scanner.Scan() {
		record, err := ParseLiveLog(scanner.Bytes())
		if err != nil {
			metrics.RecordUpstream("livelog", false)
			l.discardWarn.Do(func() {
				log.Warn().Err(err).Msg("discarding live log record")
			})
			continue
		}
		if err := emit(ctx, wire.NewBroadcast(CommandLiveLog, record)); err != nil {
			return err
		}
		metrics.RecordUpstream("livelog", true)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	readErr := scanner.Err()
	if readErr == nil {
		readErr = io.EOF
	}
	// A broken stream ends the feed like a clean close: no redial.
	log.Warn().Err(readErr).Str("addr", l.addr).Msg("live log feed connection lost, staying disconnected")
	return fmt.Errorf("%w: %s: %w", ErrUpstreamClosed, l.addr, readErr)
}

// recordSplitter yields newline-terminated records including the newline.
// Trailing bytes without a newline are yielded at EOF so the parser can
// reject them.
//
// A record that reaches limit without a newline is yielded once, truncated
// and unterminated, so it is discarded as malformed; the rest of it up to
// the next newline is skipped.
type recordSplitter struct {
	limit      int
	discarding bool
}

func newRecordSplitter(limit int) *recordSplitter {
	return &recordSplitter{limit: limit}
}

func (s *recordSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	i := bytes.IndexByte(data, '\n')
	if s.discarding {
		if i >= 0 {
			s.discarding = false
			return i + 1, nil, nil
		}
		return len(data), nil, nil
	}

	switch {
	case i >= 0:
		return i + 1, data[:i+1], nil
	case atEOF:
		return len(data), data, nil
	case len(data) >= s.limit:
		s.discarding = true
		return len(data), data, nil
	}
	return 0, nil, nil
}

// unreachable reports connection refused and unknown host errors.
func unreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
