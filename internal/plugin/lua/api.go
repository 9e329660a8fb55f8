// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package lua

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/plugin"
)

// Userdata type names.
const (
	contextType   = "eva.context"
	requestType   = "eva.request"
	responseType  = "eva.response"
	broadcastType = "eva.broadcast"
)

// install exposes the eva table and the payload types to the script.
func (m *Module) install() {
	L := m.state

	mod := L.NewTable()
	L.SetField(mod, "plugin_id", lua.LString(m.id))
	L.SetField(mod, "on", L.NewFunction(m.onFn))
	L.SetField(mod, "log", L.NewFunction(m.logFn))
	L.SetField(mod, "config", L.NewFunction(m.configFn))
	L.SetField(mod, "set_config", L.NewFunction(m.setConfigFn))
	L.SetField(mod, "save_config", L.NewFunction(m.saveConfigFn))
	L.SetField(mod, "new_request_id", L.NewFunction(newRequestIDFn))
	L.SetGlobal("eva", mod)

	registerType(L, contextType, contextMethods)
	registerType(L, requestType, requestMethods)
	registerType(L, responseType, responseMethods)
	registerType(L, broadcastType, broadcastMethods)
}

func registerType(L *lua.LState, name string, methods map[string]lua.LGFunction) {
	mt := L.NewTypeMetatable(name)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methods))
}

func newUserData(L *lua.LState, typeName string, v any) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(typeName))
	return ud
}

// goContext returns the context of the host call currently running on L.
func goContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// eva.on(hook, fn)
func (m *Module) onFn(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	if !hook.IsKnown(name) {
		m.logger.WarnContext(goContext(L), "handler registered for a hook the runtime never fires", "hook", name)
	}
	m.reg.On(name, m.handler(name, fn))
	return 0
}

// eva.log(level, message)
func (m *Module) logFn(L *lua.LState) int {
	level := L.CheckString(1)
	message := L.CheckString(2)

	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	m.logger.Log(goContext(L), lvl, message)
	return 0
}

// eva.config(key) returns the value, or nil when unset.
func (m *Module) configFn(L *lua.LState) int {
	key := L.CheckString(1)
	if m.config == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLValue(L, m.config.Get(key)))
	return 1
}

// eva.set_config(key, value) returns an error message on failure.
func (m *Module) setConfigFn(L *lua.LState) int {
	key := L.CheckString(1)
	value := fromLValue(L.CheckAny(2))
	if m.config == nil {
		L.Push(lua.LString("plugin has no configuration"))
		return 1
	}
	if err := m.config.Set(key, value); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	return 0
}

// eva.save_config() returns an error message on failure.
func (m *Module) saveConfigFn(L *lua.LState) int {
	if m.config == nil {
		L.Push(lua.LString("plugin has no configuration"))
		return 1
	}
	if err := m.config.Save(); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	return 0
}

func newRequestIDFn(L *lua.LState) int {
	L.Push(lua.LString(interaction.NewID().String()))
	return 1
}

// toLua converts a hook payload.
func (m *Module) toLua(payload any) lua.LValue {
	L := m.state
	switch p := payload.(type) {
	case nil:
		return lua.LNil
	case *interaction.Context:
		return newUserData(L, contextType, p)
	case *interaction.Request:
		return newUserData(L, requestType, p)
	case *interaction.Response:
		return newUserData(L, responseType, p)
	case *interaction.Broadcast:
		return newUserData(L, broadcastType, p)
	case *interaction.Mutation:
		t := L.NewTable()
		L.SetField(t, "field", lua.LString(p.Field))
		L.SetField(t, "text", lua.LString(p.Text))
		L.SetField(t, "audio", audioValue(L, p.Audio))
		L.SetField(t, "responding", lua.LBool(p.Responding))
		L.SetField(t, "plugin", lua.LString(p.Plugin))
		if p.Context != nil {
			L.SetField(t, "context", newUserData(L, contextType, p.Context))
		}
		return t
	case *hook.LogEntry:
		t := L.NewTable()
		L.SetField(t, "level", lua.LString(p.Level))
		L.SetField(t, "message", lua.LString(p.Message))
		L.SetField(t, "plugin", lua.LString(p.Plugin))
		L.SetField(t, "attrs", toLValue(L, p.Attrs))
		return t
	case *plugin.Report:
		t := L.NewTable()
		L.SetField(t, "activated", toLValue(L, p.Activated))
		failed := L.NewTable()
		for id, err := range p.Failed {
			L.SetField(failed, id, lua.LString(err.Error()))
		}
		L.SetField(t, "failed", failed)
		return t
	default:
		return toLValue(L, payload)
	}
}

func audioValue(L *lua.LState, a *interaction.Audio) lua.LValue {
	if a == nil {
		return lua.LNil
	}
	t := L.NewTable()
	L.SetField(t, "audio", lua.LString(a.Data))
	L.SetField(t, "content_type", lua.LString(a.ContentType))
	return t
}

func optText(text string, ok bool) lua.LValue {
	if !ok {
		return lua.LNil
	}
	return lua.LString(text)
}

var contextMethods = map[string]lua.LGFunction{
	"id": func(L *lua.LState) int {
		L.Push(lua.LString(checkContext(L).ID().String()))
		return 1
	},
	"input_text": func(L *lua.LState) int {
		c := checkContext(L)
		L.Push(optText(c.InputText(), c.HasInputText()))
		return 1
	},
	"output_text": func(L *lua.LState) int {
		c := checkContext(L)
		L.Push(optText(c.OutputText(), c.HasOutputText()))
		return 1
	},
	"input_audio": func(L *lua.LState) int {
		L.Push(audioValue(L, checkContext(L).InputAudio()))
		return 1
	},
	"output_audio": func(L *lua.LState) int {
		L.Push(audioValue(L, checkContext(L).OutputAudio()))
		return 1
	},
	"has_responded": func(L *lua.LState) int {
		L.Push(lua.LBool(checkContext(L).HasResponded()))
		return 1
	},
	"contains": func(L *lua.LState) int {
		c := checkContext(L)
		L.Push(lua.LBool(c.Contains(L.CheckString(2))))
		return 1
	},
	"set_input_text": func(L *lua.LState) int {
		c := checkContext(L)
		c.SetInputText(goContext(L), L.CheckString(2))
		return 0
	},
	"set_output_text": func(L *lua.LState) int {
		c := checkContext(L)
		c.SetOutputTextResponding(goContext(L), L.CheckString(2), L.OptBool(3, true))
		return 0
	},
	"set_input_audio": func(L *lua.LState) int {
		c := checkContext(L)
		c.SetInputAudio(goContext(L), []byte(L.CheckString(2)), L.OptString(3, ""))
		return 0
	},
	"set_output_audio": func(L *lua.LState) int {
		c := checkContext(L)
		c.SetOutputAudio(goContext(L), []byte(L.CheckString(2)), L.OptString(3, ""))
		return 0
	},
}

var requestMethods = map[string]lua.LGFunction{
	"input_text": func(L *lua.LState) int {
		r := checkRequest(L)
		L.Push(optText(r.Text(), r.HasText()))
		return 1
	},
	"has_audio": func(L *lua.LState) int {
		L.Push(lua.LBool(checkRequest(L).HasAudio()))
		return 1
	},
	"audio": func(L *lua.LState) int {
		L.Push(audioValue(L, checkRequest(L).InputAudio))
		return 1
	},
	"set_input_text": func(L *lua.LState) int {
		r := checkRequest(L)
		r.SetInputText(L.CheckString(2))
		return 0
	},
	"output_text": func(L *lua.LState) int {
		r := checkRequest(L)
		L.Push(optText(valueOf(r.OutputText), r.OutputText != nil))
		return 1
	},
	"set_output_text": func(L *lua.LState) int {
		r := checkRequest(L)
		r.SetOutputText(L.CheckString(2))
		return 0
	},
	"set_output_audio": func(L *lua.LState) int {
		r := checkRequest(L)
		r.OutputAudio = &interaction.Audio{Data: []byte(L.CheckString(2)), ContentType: L.CheckString(3)}
		return 0
	},
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var responseMethods = map[string]lua.LGFunction{
	"output_text": func(L *lua.LState) int {
		r := checkResponse(L)
		L.Push(optText(r.Text(), r.OutputText != nil))
		return 1
	},
	"output_audio": func(L *lua.LState) int {
		L.Push(audioValue(L, checkResponse(L).OutputAudio))
		return 1
	},
	"set_output_text": func(L *lua.LState) int {
		r := checkResponse(L)
		r.SetOutputText(L.CheckString(2))
		return 0
	},
}

var broadcastMethods = map[string]lua.LGFunction{
	"topic": func(L *lua.LState) int {
		L.Push(lua.LString(checkBroadcast(L).Topic))
		return 1
	},
	"message": func(L *lua.LState) int {
		L.Push(lua.LString(checkBroadcast(L).Message))
		return 1
	},
	"set_message": func(L *lua.LState) int {
		b := checkBroadcast(L)
		b.Message = L.CheckString(2)
		return 0
	},
}

func checkBroadcast(L *lua.LState) *interaction.Broadcast {
	if b, ok := L.CheckUserData(1).Value.(*interaction.Broadcast); ok {
		return b
	}
	L.ArgError(1, "broadcast expected")
	return nil
}

func checkContext(L *lua.LState) *interaction.Context {
	if c, ok := L.CheckUserData(1).Value.(*interaction.Context); ok {
		return c
	}
	L.ArgError(1, "interaction context expected")
	return nil
}

func checkRequest(L *lua.LState) *interaction.Request {
	if r, ok := L.CheckUserData(1).Value.(*interaction.Request); ok {
		return r
	}
	L.ArgError(1, "request expected")
	return nil
}

func checkResponse(L *lua.LState) *interaction.Response {
	if r, ok := L.CheckUserData(1).Value.(*interaction.Response); ok {
		return r
	}
	L.ArgError(1, "response expected")
	return nil
}

// toLValue converts plain Go values as produced by koanf and JSON decoding.
func toLValue(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []string:
		t := L.NewTable()
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, item := range x {
			t.Append(toLValue(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			L.SetField(t, k, toLValue(L, x[k]))
		}
		return t
	case error:
		return lua.LString(x.Error())
	case fmt.Stringer:
		return lua.LString(x.String())
	default:
		return lua.LNil
	}
}

// fromLValue converts a Lua value to plain Go values. Tables with a
// non-empty array part become slices, others maps.
func fromLValue(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LString:
		return string(x)
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		f := float64(x)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case *lua.LTable:
		if n := x.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLValue(x.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			out[lua.LVAsString(k)] = fromLValue(val)
		})
		return out
	default:
		return nil
	}
}
