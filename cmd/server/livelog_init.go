// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package main

import (
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/supervisor"
	"github.com/tomtom215/switchboard/internal/upstream"
)

// AddLiveLogToSupervisor adds the TCP live log bridge to the messaging
// layer. It is a no-op when the feed is disabled.
//
// An unreachable feed terminates the tree; a feed that closes the
// connection stops the bridge without restart.
func AddLiveLogToSupervisor(tree *supervisor.SupervisorTree, cfg config.LiveLogConfig, sink upstream.Sink) {
	if !cfg.Enabled {
		logging.Info().Msg("Live log feed disabled (LIVELOG_ENABLED=false)")
		return
	}
	source := upstream.NewLiveLog(cfg)
	tree.AddMessagingService(upstream.NewBridge(source, sink))
	logging.Info().Str("source", source.String()).Msg("Live log bridge added to supervisor tree (messaging layer)")
}
