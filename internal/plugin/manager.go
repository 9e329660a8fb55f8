// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/pkg/errutil"
)

var tracer = otel.Tracer("eva/plugin")

// Manager discovers plugins, loads their configuration and activates them.
type Manager struct {
	pluginDir string
	configDir string
	version   string
	bus       *hook.Bus
	store     *Store
	runtimes  map[Kind]Runtime
	builtins  []Builtin
	catalog   CatalogSource
	fetcher   Fetcher
	installer Installer

	// activation serializes activation and configuration loading.
	activation sync.Mutex
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithConfigDir sets the directory holding <id>.yaml plugin configs.
// It defaults to the plugin directory.
func WithConfigDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.configDir = dir
	}
}

// WithVersion sets the running Eva version checked against descriptor
// constraints. Unparseable versions such as "dev" disable the check.
func WithVersion(v string) ManagerOption {
	return func(m *Manager) {
		m.version = v
	}
}

// WithRuntime registers the runtime used for plugins of kind k.
func WithRuntime(k Kind, rt Runtime) ManagerOption {
	return func(m *Manager) {
		m.runtimes[k] = rt
	}
}

// WithBuiltins registers compiled-in plugins.
func WithBuiltins(b ...Builtin) ManagerOption {
	return func(m *Manager) {
		m.builtins = append(m.builtins, b...)
	}
}

// WithCatalog sets the source of remotely available plugins.
func WithCatalog(c CatalogSource) ManagerOption {
	return func(m *Manager) {
		m.catalog = c
	}
}

// WithFetcher replaces the default git fetcher.
func WithFetcher(f Fetcher) ManagerOption {
	return func(m *Manager) {
		m.fetcher = f
	}
}

// WithInstaller replaces the default install command runner.
func WithInstaller(i Installer) ManagerOption {
	return func(m *Manager) {
		m.installer = i
	}
}

// NewManager creates a plugin manager for pluginDir. Activated plugins
// register their hooks on bus.
func NewManager(pluginDir string, bus *hook.Bus, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginDir: pluginDir,
		configDir: pluginDir,
		bus:       bus,
		store:     NewStore(),
		runtimes:  make(map[Kind]Runtime),
		fetcher:   NewGitFetcher(),
		installer: CommandInstaller{},
	}
	for _, opt := range opts {
		opt(m)
	}

	if len(m.builtins) > 0 {
		if _, ok := m.runtimes[KindBuiltin]; !ok {
			m.runtimes[KindBuiltin] = NewBuiltinRuntime(m.builtins...)
		}
	}
	for _, b := range m.builtins {
		manifest := b.Manifest
		manifest.Runtime = KindBuiltin
		if manifest.Name == "" {
			manifest.Name = b.ID
		}
		d := &Descriptor{ID: b.ID, Manifest: &manifest}
		if len(b.Schema) > 0 {
			d.schema, d.schemaErr = CompileConfigSchema(b.ID, b.Schema)
		}
		m.store.Put(d)
	}
	return m
}

// PluginDir returns the directory scanned by Discover.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}

// Discover scans the plugin directory and records every valid plugin.
//
// A candidate is an immediate subdirectory <id> holding <id>.yaml and the
// entry point of its runtime. Directories whose names start or end with '_'
// are reserved. Invalid candidates are logged and skipped; a missing plugin
// directory yields no plugins and no error.
func (m *Manager) Discover(_ context.Context) ([]*Descriptor, error) {
	entries, err := os.ReadDir(m.pluginDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("plugin directory does not exist", "dir", m.pluginDir)
			return nil, nil
		}
		return nil, oops.In("plugin").With("dir", m.pluginDir).Wrapf(err, "read plugin directory")
	}

	var found []*Descriptor
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() {
			continue
		}
		if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
			slog.Debug("skipping reserved plugin directory", "dir", name)
			continue
		}
		if existing, ok := m.store.Get(name); ok {
			if existing.Manifest.Runtime == KindBuiltin {
				slog.Debug("skipping plugin directory shadowed by a builtin", "dir", name)
				continue
			}
			if m.store.Activated(name) {
				found = append(found, existing)
				continue
			}
		}

		d, err := m.inspect(name)
		if err != nil {
			slog.Debug("skipping plugin candidate", "dir", name, "error", err)
			continue
		}
		m.store.Put(d)
		found = append(found, d)
	}

	slog.Debug("plugin discovery complete", "dir", m.pluginDir, "found", len(found))
	return found, nil
}

func (m *Manager) inspect(id string) (*Descriptor, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(m.pluginDir, id)

	data, err := os.ReadFile(filepath.Join(dir, id+".yaml")) //nolint:gosec // path is built from ReadDir entries
	if err != nil {
		return nil, oops.In("plugin").With("plugin", id).Wrapf(err, "read descriptor")
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, oops.In("plugin").With("plugin", id).Wrapf(err, "parse descriptor")
	}

	entryPath := filepath.Join(dir, manifest.EntryPoint(id))
	info, err := os.Stat(entryPath)
	if err != nil {
		return nil, oops.In("plugin").With("plugin", id).With("entry", entryPath).Wrapf(err, "missing entry point")
	}
	if info.IsDir() {
		return nil, oops.In("plugin").With("plugin", id).With("entry", entryPath).Errorf("entry point is a directory")
	}
	if manifest.Runtime == KindBinary && info.Mode()&0o111 == 0 {
		return nil, oops.In("plugin").With("plugin", id).With("entry", entryPath).Errorf("entry point is not executable")
	}

	gitInfo, err := os.Stat(filepath.Join(dir, ".git"))
	return &Descriptor{
		ID:       id,
		Manifest: manifest,
		Dir:      dir,
		Git:      err == nil && gitInfo.IsDir(),
	}, nil
}

// LoadConfigurations loads and validates the configuration of every known
// plugin. A plugin whose configuration is invalid will not activate; the
// returned error joins every such failure.
func (m *Manager) LoadConfigurations(_ context.Context) error {
	m.activation.Lock()
	defer m.activation.Unlock()

	var errs []error
	for _, id := range m.store.IDs() {
		if err := m.loadConfig(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) loadConfig(id string) error {
	d, ok := m.store.Get(id)
	if !ok {
		return ErrPluginNotFound(id)
	}

	schema, err := d.schema, d.schemaErr
	if schema == nil && err == nil && d.Dir != "" {
		schema, err = LoadConfigSchema(id, d.Dir)
	}
	var cfg *Config
	if err == nil {
		cfg, err = LoadConfig(id, filepath.Join(m.configDir, id+".yaml"), schema)
	}

	m.store.Update(id, func(d *Descriptor) {
		d.schema = schema
		d.Config = cfg
		d.configErr = err
		if err != nil {
			d.Err = err
		}
	})
	if err != nil {
		errutil.LogError(slog.Default(), "plugin configuration invalid", err)
	}
	return err
}

// Activate activates plugin id and, first, its dependencies.
//
// Activating an already activated plugin does nothing. An unknown id is
// fetched when catalog lists it; otherwise PLUGIN_NOT_FOUND is returned and
// the store is not modified.
func (m *Manager) Activate(ctx context.Context, id string, catalog Catalog) error {
	m.activation.Lock()
	defer m.activation.Unlock()
	return m.activate(ctx, id, catalog, nil)
}

func (m *Manager) activate(ctx context.Context, id string, catalog Catalog, chain []string) (err error) {
	if m.store.Activated(id) {
		return nil
	}
	if slices.Contains(chain, id) {
		return ErrDependencyCycle(append(slices.Clone(chain), id))
	}

	ctx, span := tracer.Start(ctx, "plugin.activate",
		trace.WithAttributes(attribute.String("plugin.id", id)))
	defer func() {
		if err != nil {
			ActivationsTotal.WithLabelValues(ResultFailed).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			errutil.LogError(slog.Default().With("plugin", id), "plugin activation failed", err)
		}
		span.End()
	}()

	d, ok := m.store.Get(id)
	if !ok {
		entry, listed := catalog[id]
		if !listed {
			return ErrPluginNotFound(id)
		}
		if d, err = m.acquire(ctx, entry); err != nil {
			return err
		}
	}

	if err = m.activateKnown(ctx, d, catalog, append(slices.Clone(chain), id)); err != nil {
		m.store.Update(id, func(d *Descriptor) {
			d.Status = StatusFailed
			d.Err = err
		})
		return err
	}

	ActivationsTotal.WithLabelValues(ResultActivated).Inc()
	ActivePlugins.Set(float64(m.store.Loaded()))
	return nil
}

func (m *Manager) activateKnown(ctx context.Context, d *Descriptor, catalog Catalog, chain []string) error {
	if d.Config == nil && d.configErr == nil {
		_ = m.loadConfig(d.ID)
		d, _ = m.store.Get(d.ID)
	}
	if d.configErr != nil {
		return d.configErr
	}

	deps := d.Dependencies()
	var missing []string
	for _, dep := range deps {
		if !m.store.Has(dep) && !catalog.Has(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return ErrUnmetDependencies(d.ID, missing)
	}
	for _, dep := range deps {
		if err := m.activate(ctx, dep, catalog, chain); err != nil {
			return oops.In("plugin").
				With("plugin", d.ID).
				With("dependency", dep).
				Wrapf(err, "dependency %s of %s failed", dep, d.ID)
		}
	}

	if err := m.checkCompatible(d); err != nil {
		return err
	}
	if err := m.installer.Install(ctx, d); err != nil {
		return err
	}

	rt, ok := m.runtimes[d.Manifest.Runtime]
	if !ok {
		return ErrActivationFailed(d.ID, oops.With("runtime", d.Manifest.Runtime).
			Errorf("no runtime registered for %s plugins", d.Manifest.Runtime))
	}

	reg := m.bus.Registrar(d.ID)
	mod, err := rt.Bind(ctx, d, reg)
	if err != nil {
		reg.Discard()
		return ErrActivationFailed(d.ID, err)
	}
	if e, ok := mod.(Enabler); ok {
		if err := e.OnEnable(hook.WithCaller(ctx, d.ID)); err != nil {
			reg.Discard()
			if uerr := rt.Unbind(ctx, d.ID); uerr != nil {
				slog.Warn("failed to unbind plugin after enable error", "plugin", d.ID, "error", uerr)
			}
			return ErrActivationFailed(d.ID, oops.Wrapf(err, "on enable"))
		}
	}
	reg.Commit()

	m.store.Update(d.ID, func(d *Descriptor) {
		d.Module = mod
		d.Status = StatusLoaded
		d.Err = nil
	})
	slog.Info("plugin activated",
		"plugin", d.ID,
		"runtime", d.Manifest.Runtime,
		"version", d.Manifest.Version)
	return nil
}

func (m *Manager) checkCompatible(d *Descriptor) error {
	if d.Manifest.Eva == "" || m.version == "" {
		return nil
	}
	running, err := semver.NewVersion(m.version)
	if err != nil {
		slog.Debug("skipping runtime compatibility check", "version", m.version, "plugin", d.ID)
		return nil
	}
	constraint, err := semver.NewConstraint(d.Manifest.Eva)
	if err != nil {
		return ErrIncompatibleRuntime(d.ID, d.Manifest.Eva, m.version)
	}
	if !constraint.Check(running) {
		return ErrIncompatibleRuntime(d.ID, d.Manifest.Eva, m.version)
	}
	return nil
}

func (m *Manager) acquire(ctx context.Context, entry CatalogEntry) (*Descriptor, error) {
	if err := ValidateID(entry.ID); err != nil {
		return nil, ErrFetchFailed(entry.ID, entry.URL, err)
	}
	if m.fetcher == nil {
		return nil, ErrFetchFailed(entry.ID, entry.URL, oops.Errorf("no fetcher configured"))
	}
	if err := os.MkdirAll(m.pluginDir, 0o750); err != nil {
		return nil, ErrFetchFailed(entry.ID, entry.URL, err)
	}

	dest := filepath.Join(m.pluginDir, entry.ID)
	if err := m.fetcher.Fetch(ctx, entry, dest); err != nil {
		return nil, ErrFetchFailed(entry.ID, entry.URL, err)
	}
	d, err := m.inspect(entry.ID)
	if err != nil {
		return nil, ErrFetchFailed(entry.ID, entry.URL, oops.Wrapf(err, "fetched plugin is not valid"))
	}
	d.Git = true
	m.store.Put(d)
	_ = m.loadConfig(d.ID)

	slog.Info("fetched plugin", "plugin", entry.ID, "url", entry.URL)
	d, _ = m.store.Get(entry.ID)
	return d, nil
}

// Report summarizes an ActivateAll pass.
type Report struct {
	Activated []string
	Failed    map[string]error
}

// FailedIDs returns the IDs that failed, sorted.
func (r *Report) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ActivateAll activates every id in ids, or every discovered plugin when ids
// is empty. Builtins are opt-in: they activate only when named in ids or
// required by an activated plugin. Each plugin is attempted independently.
// The plugins-loaded hook fires with the report afterwards.
func (m *Manager) ActivateAll(ctx context.Context, ids []string) *Report {
	if len(ids) == 0 {
		ids = m.discoveredIDs()
	}

	catalog := Catalog{}
	if m.needsCatalog(ids) {
		catalog = m.RefreshCatalog(ctx, false)
	}

	report := &Report{Failed: make(map[string]error)}
	for _, id := range ids {
		if err := m.Activate(ctx, id, catalog); err != nil {
			report.Failed[id] = err
			continue
		}
		report.Activated = append(report.Activated, id)
	}

	m.bus.Trigger(ctx, hook.PluginsLoaded, report)
	slog.Info("plugins loaded",
		"activated", len(report.Activated),
		"failed", len(report.Failed))
	return report
}

// discoveredIDs returns the sorted IDs of every known plugin that is not a
// builtin.
func (m *Manager) discoveredIDs() []string {
	var ids []string
	for _, id := range m.store.IDs() {
		d, ok := m.store.Get(id)
		if ok && d.Manifest != nil && d.Manifest.Runtime == KindBuiltin {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// needsCatalog reports whether any of ids or their dependencies is unknown
// locally.
func (m *Manager) needsCatalog(ids []string) bool {
	if m.catalog == nil {
		return false
	}
	for _, id := range ids {
		d, ok := m.store.Get(id)
		if !ok {
			return true
		}
		for _, dep := range d.Dependencies() {
			if !m.store.Has(dep) {
				return true
			}
		}
	}
	return false
}

// LoadPlugins runs discovery, configuration loading and activation of the
// enabled plugins (every discovered non-builtin plugin when enabled is empty).
func (m *Manager) LoadPlugins(ctx context.Context, enabled []string) *Report {
	if _, err := m.Discover(ctx); err != nil {
		errutil.LogError(slog.Default(), "plugin discovery failed", err)
	}
	if err := m.LoadConfigurations(ctx); err != nil {
		slog.Warn("some plugin configurations are invalid", "error", err)
	}
	return m.ActivateAll(ctx, enabled)
}

// IsActivated reports whether plugin id has a bound module.
func (m *Manager) IsActivated(id string) bool {
	return m.store.Activated(id)
}

// Get returns a snapshot of plugin id.
func (m *Manager) Get(id string) (Info, bool) {
	return m.store.Info(id)
}

// Config returns the loaded configuration of plugin id.
func (m *Manager) Config(id string) (*Config, bool) {
	d, ok := m.store.Get(id)
	if !ok || d.Config == nil {
		return nil, false
	}
	return d.Config, true
}

// Descriptors returns snapshots of every known plugin, sorted by ID.
func (m *Manager) Descriptors() []Info {
	return m.store.Infos()
}

// CountAvailable returns the number of known plugins.
func (m *Manager) CountAvailable() int {
	return m.store.Len()
}

// CountActivated returns the number of activated plugins.
func (m *Manager) CountActivated() int {
	return m.store.Loaded()
}

// RefreshCatalog loads the catalog, pulling the latest copy when forcePull
// is set. Failures are logged and yield an empty catalog.
func (m *Manager) RefreshCatalog(ctx context.Context, forcePull bool) Catalog {
	if m.catalog == nil {
		return Catalog{}
	}
	cat, err := m.catalog.Load(ctx, forcePull)
	if err != nil {
		errutil.LogError(slog.Default(), "failed to load plugin catalog", err)
		return Catalog{}
	}
	return cat
}

// ResetCatalog discards the local catalog copy, fetches it again and returns
// the result. Failures are logged and yield an empty catalog.
func (m *Manager) ResetCatalog(ctx context.Context) Catalog {
	if m.catalog == nil {
		return Catalog{}
	}
	if err := m.catalog.Reset(ctx); err != nil {
		errutil.LogError(slog.Default(), "failed to reset plugin catalog", err)
		return Catalog{}
	}
	return m.RefreshCatalog(ctx, false)
}

// Update pulls the latest source of a git-managed plugin and re-reads its
// descriptor. The running module is not reloaded.
func (m *Manager) Update(ctx context.Context, id string) error {
	m.activation.Lock()
	defer m.activation.Unlock()

	d, ok := m.store.Get(id)
	if !ok {
		return ErrPluginNotFound(id)
	}
	if !d.Git {
		return oops.In("plugin").With("plugin", id).Errorf("plugin %s is not a git checkout", id)
	}
	if m.fetcher == nil {
		return oops.In("plugin").With("plugin", id).Errorf("no fetcher configured")
	}
	if err := m.fetcher.Update(ctx, d.Dir); err != nil {
		return ErrFetchFailed(id, d.Dir, err)
	}

	fresh, err := m.inspect(id)
	if err != nil {
		return oops.In("plugin").With("plugin", id).Wrapf(err, "updated plugin is not valid")
	}
	m.store.Update(id, func(d *Descriptor) {
		d.Manifest = fresh.Manifest
	})
	slog.Info("plugin updated", "plugin", id, "version", fresh.Manifest.Version)
	return nil
}

// Close shuts down every runtime. Activated plugins return to not loaded.
func (m *Manager) Close(ctx context.Context) error {
	m.activation.Lock()
	defer m.activation.Unlock()

	var errs []error
	for kind, rt := range m.runtimes {
		if err := rt.Close(ctx); err != nil {
			errs = append(errs, oops.In("plugin").With("runtime", kind).Wrapf(err, "close runtime"))
		}
	}
	for _, id := range m.store.IDs() {
		m.store.Update(id, func(d *Descriptor) {
			if d.Module != nil {
				d.Module = nil
				d.Status = StatusNotLoaded
			}
		})
	}
	ActivePlugins.Set(0)
	return errors.Join(errs...)
}
