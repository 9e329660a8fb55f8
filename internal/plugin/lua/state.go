// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package lua runs plugins written in Lua on gopher-lua.
package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

type library struct {
	name string
	fn   lua.LGFunction
}

// Libraries opened in every plugin state. os, io, debug and package are
// left out so a script only reaches the host through the eva table.
func defaultLibraries() []library {
	return []library{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	}
}

// Base functions that read files from disk.
var blockedGlobals = []string{"dofile", "loadfile", "loadstring", "load"}

// StateFactory creates Lua states for plugins.
type StateFactory struct {
	libraries     []library
	callStackSize int
}

// StateOption configures a StateFactory.
type StateOption func(*StateFactory)

// WithCallStackSize bounds the Lua call stack of every state.
func WithCallStackSize(n int) StateOption {
	return func(f *StateFactory) {
		f.callStackSize = n
	}
}

// NewStateFactory creates a new state factory.
func NewStateFactory(opts ...StateOption) *StateFactory {
	f := &StateFactory{libraries: defaultLibraries()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewState creates a fresh state with the default libraries opened and the
// file loading functions removed.
func (f *StateFactory) NewState(_ context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: f.callStackSize,
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.In("lua").With("library", lib.name).Wrapf(err, "open library")
		}
	}

	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	return L, nil
}
