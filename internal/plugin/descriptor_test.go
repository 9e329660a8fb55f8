// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evahq/eva/internal/plugin"
)

func TestStore(t *testing.T) {
	s := plugin.NewStore()
	s.Put(&plugin.Descriptor{ID: "b", Manifest: &plugin.Manifest{Name: "B", Version: "1.0.0", Runtime: plugin.KindLua}})
	s.Put(&plugin.Descriptor{ID: "a", Manifest: &plugin.Manifest{Name: "A", Version: "2.0.0", Runtime: plugin.KindLua, Dependencies: []string{"b", "b"}}})

	assert.Equal(t, []string{"a", "b"}, s.IDs())
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("a"))
	assert.False(t, s.Activated("a"))
	assert.Equal(t, 0, s.Loaded())

	ok := s.Update("a", func(d *plugin.Descriptor) {
		d.Status = plugin.StatusFailed
		d.Err = errors.New("boom")
	})
	assert.True(t, ok)
	assert.False(t, s.Update("zzz", func(*plugin.Descriptor) {}))

	info, found := s.Info("a")
	assert.True(t, found)
	assert.Equal(t, plugin.Info{
		ID:           "a",
		Name:         "A",
		Version:      "2.0.0",
		Runtime:      plugin.KindLua,
		Dependencies: []string{"b"},
		Status:       "failed",
		Error:        "boom",
	}, info)

	infos := s.Infos()
	assert.Equal(t, "a", infos[0].ID)
	assert.Equal(t, "not-loaded", infos[1].Status)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "not-loaded", plugin.StatusNotLoaded.String())
	assert.Equal(t, "loaded", plugin.StatusLoaded.String())
	assert.Equal(t, "failed", plugin.StatusFailed.String())
}
