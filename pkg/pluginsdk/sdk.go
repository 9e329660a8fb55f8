// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package pluginsdk provides the SDK for building Eva binary plugins.
//
// Binary plugins run as separate processes and talk to Eva over gRPC using
// the HashiCorp go-plugin framework. A plugin names the hooks it wants,
// receives an Event for each trigger and answers with a Result describing
// the changes to make.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//		"strings"
//
//		"github.com/evahq/eva/pkg/pluginsdk"
//	)
//
//	type echo struct{}
//
//	func (echo) Hooks() []string { return []string{"interaction"} }
//
//	func (echo) HandleEvent(_ context.Context, e pluginsdk.Event) (pluginsdk.Result, error) {
//		if e.Responded || e.InputText == nil || !strings.HasPrefix(*e.InputText, "echo ") {
//			return pluginsdk.Result{}, nil
//		}
//		return pluginsdk.Respond(strings.TrimPrefix(*e.InputText, "echo ")), nil
//	}
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{Handler: echo{}})
//	}
package pluginsdk

import (
	"context"

	hashiplug "github.com/hashicorp/go-plugin"
)

// Audio is a block of encoded audio.
type Audio struct {
	Data        []byte `json:"audio"`
	ContentType string `json:"content_type"`
}

// Event is one hook trigger delivered to a plugin. Nil pointers mean the
// value is absent.
type Event struct {
	// Hook is the name of the hook being fired.
	Hook string `json:"hook"`
	// InteractionID is the ULID of the interaction, empty outside one.
	InteractionID string `json:"interaction_id,omitempty"`

	InputText   *string `json:"input_text,omitempty"`
	InputAudio  *Audio  `json:"input_audio,omitempty"`
	OutputText  *string `json:"output_text,omitempty"`
	OutputAudio *Audio  `json:"output_audio,omitempty"`
	Responded   bool    `json:"responded"`

	// Field, Text, Audio, Responding and Plugin describe the mutation on
	// pre-set-* and post-set-* hooks. Responding reports whether an output
	// text mutation claims the response. Plugin is the plugin performing it,
	// or the plugin that logged the record on the logger hooks.
	Field      string `json:"field,omitempty"`
	Text       string `json:"text,omitempty"`
	Audio      *Audio `json:"audio,omitempty"`
	Responding bool   `json:"responding,omitempty"`
	Plugin     string `json:"plugin,omitempty"`

	// Level and Attrs carry the log record on the logger hooks, with the
	// text in Message.
	Level string         `json:"level,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`

	// Activated and Failed carry the plugins-loaded report.
	Activated []string          `json:"activated,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`

	// Topic and Message carry the broadcast on the publish hooks, and Message
	// the log text on the logger hooks.
	Topic   string `json:"topic,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result is a plugin's answer to an Event. Nil fields leave the
// interaction unchanged.
type Result struct {
	InputText   *string `json:"input_text,omitempty"`
	InputAudio  *Audio  `json:"input_audio,omitempty"`
	OutputText  *string `json:"output_text,omitempty"`
	OutputAudio *Audio  `json:"output_audio,omitempty"`
	// Amend sets OutputText without claiming the response.
	Amend bool `json:"amend,omitempty"`
	// Message replaces the broadcast on pre-publish.
	Message *string `json:"message,omitempty"`
}

// Empty reports whether r changes nothing.
func (r Result) Empty() bool {
	return r.InputText == nil && r.InputAudio == nil &&
		r.OutputText == nil && r.OutputAudio == nil && r.Message == nil
}

// Respond returns a Result that sets the output text and claims the response.
func Respond(text string) Result {
	return Result{OutputText: &text}
}

// Amend returns a Result that replaces the output text without claiming the
// response.
func Amend(text string) Result {
	return Result{OutputText: &text, Amend: true}
}

// Transcribe returns a Result that sets the input text.
func Transcribe(text string) Result {
	return Result{InputText: &text}
}

// Handler is the interface that binary plugins must implement.
type Handler interface {
	// Hooks returns the hook names or glob patterns (pre-set-*) to subscribe to.
	Hooks() []string
	// HandleEvent processes one hook trigger.
	HandleEvent(ctx context.Context, event Event) (Result, error)
}

// Enabler is implemented by handlers that need to run setup after their
// hooks are bound. An error fails the plugin's activation.
type Enabler interface {
	Enable(ctx context.Context) error
}

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "EVA_PLUGIN",
	MagicCookieValue: "eva-v1",
}

// PluginName is the name the plugin is dispensed under.
const PluginName = "plugin"

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Handler is the event handler implementation.
	// Required; Serve will panic if nil.
	Handler Handler
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Handler == nil {
		panic("pluginsdk: config.Handler cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &GRPCPlugin{Impl: config.Handler},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
}
