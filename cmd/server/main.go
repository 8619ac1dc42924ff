// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/switchboard/internal/api"
	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/command"
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/gateway"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/supervisor"
	"github.com/tomtom215/switchboard/internal/supervisor/services"
)

// oidcDiscoveryTimeout bounds provider discovery at startup.
const oidcDiscoveryTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Switchboard stopped")
	}
	logging.Info().Msg("Switchboard stopped gracefully")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Bool("relay_enabled", cfg.Relay.Enabled).
		Bool("livelog_enabled", cfg.LiveLog.Enabled).
		Bool("oidc_enabled", cfg.OIDC.Enabled()).
		Msg("Starting Switchboard with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens, err := auth.NewTokenService(&cfg.Security)
	if err != nil {
		return fmt.Errorf("initialize token service: %w", err)
	}

	enforcer, err := authz.NewEnforcer(authz.Config{
		ModelPath:  cfg.Security.PolicyModelPath,
		PolicyPath: cfg.Security.PolicyPath,
	})
	if err != nil {
		return fmt.Errorf("initialize access policy: %w", err)
	}

	gw, err := gateway.New(cfg.Gateway, tokens, command.NewRegistry(), enforcer)
	if err != nil {
		return fmt.Errorf("initialize gateway: %w", err)
	}

	relay, err := InitRelay(cfg.Relay)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		relay.Close(shutdownCtx)
	}()

	handler := api.NewHandler(api.HandlerConfig{
		Production:    cfg.IsProduction(),
		DefaultAccess: cfg.OIDC.DefaultAccess,
		PostLoginURL:  cfg.OIDC.PostLoginURL,
	}, tokens, gw)

	if pub := relay.Publisher(); pub != nil {
		handler.SetEventPublisher(pub)
		handler.AddReadinessCheck("relay", relay.Ready)
	}

	if cfg.OIDC.Enabled() {
		discoveryCtx, discoveryCancel := context.WithTimeout(ctx, oidcDiscoveryTimeout)
		flow, err := auth.NewOIDCFlow(discoveryCtx, &cfg.OIDC)
		discoveryCancel()
		if err != nil {
			return fmt.Errorf("initialize OIDC login: %w", err)
		}
		handler.SetLoginFlow(flow)
		logging.Info().Str("issuer", cfg.OIDC.IssuerURL).Msg("OIDC login enabled")
	} else if cfg.IsProduction() {
		logging.Warn().Msg("No OIDC provider configured: login is disabled in production")
	} else {
		logging.Warn().Msg("No OIDC provider configured: login issues anonymous tokens (development only)")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mw.RateLimitRequests = cfg.Security.RateLimitReqs
	mw.RateLimitWindow = cfg.Security.RateLimitWindow
	mw.RateLimitDisabled = cfg.Security.RateLimitDisabled
	router := api.NewRouter(handler, enforcer, api.NewChiMiddleware(mw))

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddMessagingService(services.NewGatewayService(gw))
	relay.AddToSupervisor(tree, gw)
	AddLiveLogToSupervisor(tree, cfg.LiveLog, gw)
	tree.AddAPIService(services.NewHTTPServerServiceWithListener(server, ln, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", ln.Addr().String()).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree...")
	err = <-tree.ServeBackground(ctx)

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}
