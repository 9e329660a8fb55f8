// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"sort"
	"sync"
)

// Status is the activation state of a plugin.
type Status int

// Activation states.
const (
	StatusNotLoaded Status = iota
	StatusLoaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "not-loaded"
	}
}

// Descriptor is everything the manager knows about one plugin.
type Descriptor struct {
	ID       string
	Manifest *Manifest
	// Dir is the plugin directory. Empty for builtin plugins.
	Dir string
	// Git is set when the plugin directory is a git checkout.
	Git    bool
	Config *Config
	Module Module
	Status Status
	// Err is the last activation or configuration error.
	Err error

	configErr error
	schema    *ConfigSchema
	schemaErr error
}

// Dependencies returns the dependency set.
func (d *Descriptor) Dependencies() []string {
	if d.Manifest == nil {
		return nil
	}
	return d.Manifest.DependencySet()
}

// Info is a read-only snapshot of a Descriptor.
type Info struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Version      string   `json:"version"`
	Runtime      Kind     `json:"runtime"`
	Dependencies []string `json:"dependencies,omitempty"`
	Dir          string   `json:"dir,omitempty"`
	Git          bool     `json:"git"`
	Status       string   `json:"status"`
	Error        string   `json:"error,omitempty"`
}

func (d *Descriptor) info() Info {
	in := Info{
		ID:           d.ID,
		Dependencies: d.Dependencies(),
		Dir:          d.Dir,
		Git:          d.Git,
		Status:       d.Status.String(),
	}
	if d.Manifest != nil {
		in.Name = d.Manifest.Name
		in.Description = d.Manifest.Description
		in.Version = d.Manifest.Version
		in.Runtime = d.Manifest.Runtime
	}
	if d.Err != nil {
		in.Error = d.Err.Error()
	}
	return in
}

// Store holds descriptors keyed by plugin ID.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Descriptor
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Descriptor)}
}

// Get returns the descriptor for id.
func (s *Store) Get(id string) (*Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	return d, ok
}

// Has reports whether id is known.
func (s *Store) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Put adds or replaces a descriptor.
func (s *Store) Put(d *Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.ID] = d
}

// Update runs fn on the descriptor for id while holding the write lock.
// It reports whether id was found.
func (s *Store) Update(id string, fn func(d *Descriptor)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if ok {
		fn(d)
	}
	return ok
}

// IDs returns the known plugin IDs, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of known plugins.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Infos returns snapshots of every descriptor, sorted by ID.
func (s *Store) Infos() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Info returns a snapshot of the descriptor for id.
func (s *Store) Info(id string) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return Info{}, false
	}
	return d.info(), true
}

// Activated reports whether id has a bound module.
func (s *Store) Activated(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	return ok && d.Module != nil
}

// Loaded returns the number of plugins with a bound module.
func (s *Store) Loaded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.byID {
		if d.Module != nil {
			n++
		}
	}
	return n
}
