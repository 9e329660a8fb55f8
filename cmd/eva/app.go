// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package main

import (
	"log/slog"

	"github.com/evahq/eva/internal/builtin"
	"github.com/evahq/eva/internal/config"
	"github.com/evahq/eva/internal/director"
	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/logging"
	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/internal/plugin/goplugin"
	"github.com/evahq/eva/internal/plugin/lua"
	"github.com/evahq/eva/internal/transport"
)

// app wires the runtime components built from one configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	bus      *hook.Bus
	plugins  *plugin.Manager
	director *director.Director
}

// newApp builds the bus, plugin manager and director. t may be nil for
// one-shot commands that never serve.
//
// Records logged through the returned app's logger, and through the default
// logger, fire the logger hooks. The bus and the binary plugin runtime keep
// base so that handler failures and plugin process output never feed back
// into the hooks.
func newApp(cfg *config.Config, base *slog.Logger, t transport.Transport) *app {
	bus := hook.NewBus(hook.WithLogger(base))
	logger := slog.New(logging.NewHookHandler(base.Handler(), bus))
	slog.SetDefault(logger)

	opts := []plugin.ManagerOption{
		plugin.WithConfigDir(cfg.ConfigDirectory),
		plugin.WithVersion(version),
		plugin.WithRuntime(plugin.KindLua, lua.NewRuntime(lua.WithLogger(logger))),
		plugin.WithRuntime(plugin.KindBinary, goplugin.NewRuntime(goplugin.WithLogger(base))),
		plugin.WithBuiltins(builtin.All()...),
	}
	if cfg.Catalog.URL != "" {
		opts = append(opts, plugin.WithCatalog(plugin.NewGitCatalog(cfg.Catalog.URL, cfg.Catalog.Path, nil)))
	}
	manager := plugin.NewManager(cfg.PluginDirectory, bus, opts...)

	dopts := []director.Option{
		director.WithEnabledPlugins(cfg.EnabledPlugins...),
		director.WithWorkers(cfg.Workers),
		director.WithLogger(logger),
	}
	if t != nil {
		dopts = append(dopts, director.WithTransport(t))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		plugins:  manager,
		director: director.New(bus, manager, dopts...),
	}
}
