// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evahq/eva/internal/api"
	"github.com/evahq/eva/internal/config"
	"github.com/evahq/eva/internal/director"
	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/logging"
	"github.com/evahq/eva/internal/observability"
	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/internal/transport"
	"github.com/evahq/eva/internal/xdg"
	"github.com/evahq/eva/pkg/errutil"
)

// shutdownTimeout bounds graceful shutdown of every server.
const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot the plugins and serve interactions",
		Long: `Boot every enabled plugin, then serve interactions over HTTP and
websocket. Requests published on eva_commands are answered on eva_responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.SetDefault("eva", version, cfg.Log.Format, cfg.Log.Level)
			return runServe(cmd.Context(), cmd, cfg, logger)
		},
	}

	cmd.Flags().String("http-addr", config.DefaultHTTPAddr, "HTTP and websocket listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().StringSlice("allowed-origins", []string{"*"}, "origins allowed by CORS and the websocket")
	cmd.Flags().Int("workers", config.DefaultWorkers, "interactions handled concurrently from eva_commands")

	return cmd
}

// runServe runs until ctx is cancelled, a signal arrives or a server fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.PluginDirectory, cfg.ConfigDirectory} {
		if err := xdg.EnsureDir(dir); err != nil {
			return err
		}
	}

	broker := transport.NewBroker(transport.WithBrokerLogger(logger))
	defer broker.Close()

	a := newApp(cfg, logger, broker)
	logger = a.logger
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.plugins.Close(closeCtx); err != nil {
			errutil.LogError(logger, "error closing plugin runtimes", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	var started []stopper

	// The observability server starts before boot so readiness reports 503
	// while plugins load.
	if cfg.MetricsAddr != "" {
		obs := observability.NewServer(cfg.MetricsAddr, a.director.Booted,
			observability.WithVersion(version),
			observability.WithRegistrars(
				hook.RegisterMetrics,
				plugin.RegisterMetrics,
				director.RegisterMetrics,
				transport.RegisterMetrics,
			),
		)
		obsErr, err := obs.Start()
		if err != nil {
			return oops.In("serve").Wrapf(err, "start observability server")
		}
		started = append(started, obs)
		g.Go(func() error { return watch(gctx, obsErr, "observability") })
	}

	report, err := a.director.Boot(gctx)
	if err != nil {
		stopServers(logger, started...)
		return err
	}
	if failed := report.FailedIDs(); len(failed) > 0 {
		logger.Warn("some plugins failed to activate", "plugins", failed)
	}

	bridge := transport.NewBridge(broker,
		transport.WithAllowedOrigins(cfg.AllowedOrigins...),
		transport.WithBridgeLogger(logger),
	)
	srv := api.NewServer(cfg.HTTPAddr, a.director,
		api.WithPlugins(a.plugins),
		api.WithHooks(a.bus),
		api.WithWebSocket(bridge),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithLogger(logger),
	)
	apiErr, err := srv.Start()
	if err != nil {
		stopServers(logger, started...)
		return oops.In("serve").Wrapf(err, "start api server")
	}
	started = append(started, srv)
	g.Go(func() error { return watch(gctx, apiErr, "api") })

	g.Go(func() error { return a.director.Serve(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		bridge.Close()
		stopServers(logger, started...)
		broker.Close()
		return nil
	})

	cmd.Println("Eva started")
	logger.Info("eva ready",
		"http_addr", srv.Addr(),
		"plugins_available", a.plugins.CountAvailable(),
		"plugins_activated", a.plugins.CountActivated(),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// stopper is a server with a graceful Stop.
type stopper interface {
	Stop(ctx context.Context) error
}

// stopServers stops servers in reverse start order.
func stopServers(logger *slog.Logger, servers ...stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].Stop(ctx); err != nil {
			logger.Warn("error stopping server", "error", err)
		}
	}
}

// watch returns the first error a server reports, which cancels the group.
// It returns nil when the server stops cleanly or ctx is done.
func watch(ctx context.Context, errCh <-chan error, server string) error {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		return oops.In("serve").With("server", server).Wrapf(err, "server failed")
	case <-ctx.Done():
		return nil
	}
}
