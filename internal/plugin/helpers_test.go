// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/plugin"
)

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o750))
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

// writeLuaPlugin creates <root>/<id>/<id>.yaml and <id>.lua.
func writeLuaPlugin(t *testing.T, root, id string, deps ...string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	mkdirAll(t, dir)

	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nversion: 1.0.0\nruntime: lua\n", id)
	if len(deps) > 0 {
		b.WriteString("dependencies:\n")
		for _, d := range deps {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
	}
	writeFile(t, filepath.Join(dir, id+".yaml"), []byte(b.String()))
	writeFile(t, filepath.Join(dir, id+".lua"), []byte("-- "+id+"\n"))
	return dir
}

// fakeRuntime records binds and registers one interaction handler per plugin.
type fakeRuntime struct {
	mu      sync.Mutex
	binds   map[string]int
	order   []string
	failFor map[string]error
	enable  map[string]error
	closed  bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		binds:   make(map[string]int),
		failFor: make(map[string]error),
		enable:  make(map[string]error),
	}
}

func (r *fakeRuntime) Bind(_ context.Context, d *plugin.Descriptor, reg *hook.Registrar) (plugin.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binds[d.ID]++
	reg.On(hook.Interaction, func(_ context.Context, _ any) error { return nil })
	if err, ok := r.failFor[d.ID]; ok {
		return nil, err
	}
	r.order = append(r.order, d.ID)
	return &fakeModule{id: d.ID, enableErr: r.enable[d.ID]}, nil
}

func (r *fakeRuntime) Unbind(_ context.Context, _ string) error {
	return nil
}

func (r *fakeRuntime) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRuntime) bindCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.binds[id]
}

type fakeModule struct {
	id        string
	enableErr error
	enabled   bool
	caller    string
}

func (m *fakeModule) ID() string {
	return m.id
}

func (m *fakeModule) OnEnable(ctx context.Context) error {
	m.enabled = true
	m.caller = hook.CallerFrom(ctx)
	return m.enableErr
}

// mockCatalog is a testify mock of plugin.CatalogSource.
type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Load(ctx context.Context, forcePull bool) (plugin.Catalog, error) {
	args := m.Called(ctx, forcePull)
	cat, _ := args.Get(0).(plugin.Catalog)
	return cat, args.Error(1)
}

func (m *mockCatalog) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// dirFetcher "fetches" a plugin by writing a Lua plugin into dest.
type dirFetcher struct {
	fetched []string
	fail    bool
	deps    map[string][]string
	updates []string
}

func (f *dirFetcher) Fetch(_ context.Context, entry plugin.CatalogEntry, dest string) error {
	if f.fail {
		return errors.New("network unreachable")
	}
	f.fetched = append(f.fetched, entry.ID)
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return err
	}
	dir := filepath.Join(parent, entry.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nversion: 1.0.0\nruntime: lua\n", entry.Name)
	if deps := f.deps[entry.ID]; len(deps) > 0 {
		b.WriteString("dependencies:\n")
		for _, d := range deps {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, entry.ID+".yaml"), []byte(b.String()), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, entry.ID+".lua"), []byte("-- fetched\n"), 0o600)
}

func (f *dirFetcher) Update(_ context.Context, dir string) error {
	f.updates = append(f.updates, dir)
	return nil
}

// noInstall skips the install step.
type noInstall struct{}

func (noInstall) Install(context.Context, *plugin.Descriptor) error { return nil }
