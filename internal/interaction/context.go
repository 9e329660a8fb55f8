// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package interaction holds the per-request state that plugins read and
// mutate while a request moves through the pipeline.
package interaction

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/evahq/eva/internal/hook"
)

// Field names carried by Mutation.
const (
	FieldInputText   = "input_text"
	FieldInputAudio  = "input_audio"
	FieldOutputText  = "output_text"
	FieldOutputAudio = "output_audio"
)

// Mutation is the payload of the pre-set-* and post-set-* hooks. The same
// value is passed to both hooks of one mutation.
type Mutation struct {
	Field      string
	Text       string
	Audio      *Audio
	Responding bool
	// Plugin is the plugin that performed the mutation, or hook.Core.
	Plugin  string
	Context *Context
}

// Context is the mutable state of one interaction.
//
// A Context is confined to the goroutine running the interaction; it is not
// safe for concurrent use.
type Context struct {
	id          ulid.ULID
	bus         hook.Dispatcher
	inputText   *string
	inputAudio  *Audio
	outputText  *string
	outputAudio *Audio
	responded   bool
}

// New builds a Context from req. A nil req yields an empty Context.
// The request's text and audio are copied. A pre-filled output does not
// claim the response.
func New(bus hook.Dispatcher, req *Request) *Context {
	c := &Context{id: NewID(), bus: bus}
	if req != nil {
		if req.InputText != nil {
			text := *req.InputText
			c.inputText = &text
		}
		c.inputAudio = req.InputAudio.clone()
		if req.OutputText != nil {
			text := *req.OutputText
			c.outputText = &text
		}
		c.outputAudio = req.OutputAudio.clone()
	}
	return c
}

// ID returns the interaction ID.
func (c *Context) ID() ulid.ULID {
	return c.id
}

// InputText returns the input text, or "" when unset.
func (c *Context) InputText() string {
	if c.inputText == nil {
		return ""
	}
	return *c.inputText
}

// HasInputText reports whether input text is set.
func (c *Context) HasInputText() bool {
	return c.inputText != nil
}

// InputAudio returns the input audio, or nil when absent.
func (c *Context) InputAudio() *Audio {
	return c.inputAudio
}

// OutputText returns the output text, or "" when unset.
func (c *Context) OutputText() string {
	if c.outputText == nil {
		return ""
	}
	return *c.outputText
}

// HasOutputText reports whether output text is set.
func (c *Context) HasOutputText() bool {
	return c.outputText != nil
}

// OutputAudio returns the output audio, or nil when absent.
func (c *Context) OutputAudio() *Audio {
	return c.outputAudio
}

// HasResponded reports whether a plugin has claimed the response.
func (c *Context) HasResponded() bool {
	return c.responded
}

// Contains reports whether keyword occurs in the input text. It is a plain
// case-sensitive substring test and is false when there is no input text.
func (c *Context) Contains(keyword string) bool {
	if c.inputText == nil {
		return false
	}
	return strings.Contains(*c.inputText, keyword)
}

// SetInputText replaces the input text.
func (c *Context) SetInputText(ctx context.Context, text string) {
	m := c.mutation(ctx, FieldInputText)
	m.Text = text
	c.apply(ctx, hook.PreSetInputText, hook.PostSetInputText, m, func() {
		c.inputText = &text
	})
}

// SetInputAudio replaces the input audio.
func (c *Context) SetInputAudio(ctx context.Context, data []byte, contentType string) {
	m := c.mutation(ctx, FieldInputAudio)
	m.Audio = &Audio{Data: data, ContentType: contentType}
	c.apply(ctx, hook.PreSetInputAudio, hook.PostSetInputAudio, m, func() {
		c.inputAudio = m.Audio
	})
}

// SetOutputText replaces the output text and claims the response.
func (c *Context) SetOutputText(ctx context.Context, text string) {
	c.SetOutputTextResponding(ctx, text, true)
}

// SetOutputTextResponding replaces the output text and sets the responded
// flag to responding. Passing false amends the text without claiming the
// response and clears a previous claim.
func (c *Context) SetOutputTextResponding(ctx context.Context, text string, responding bool) {
	m := c.mutation(ctx, FieldOutputText)
	m.Text = text
	m.Responding = responding
	c.apply(ctx, hook.PreSetOutputText, hook.PostSetOutputText, m, func() {
		c.outputText = &text
		c.responded = responding
	})
}

// SetOutputAudio replaces the output audio.
func (c *Context) SetOutputAudio(ctx context.Context, data []byte, contentType string) {
	m := c.mutation(ctx, FieldOutputAudio)
	m.Audio = &Audio{Data: data, ContentType: contentType}
	c.apply(ctx, hook.PreSetOutputAudio, hook.PostSetOutputAudio, m, func() {
		c.outputAudio = m.Audio
	})
}

// Response extracts the client-facing result.
func (c *Context) Response() *Response {
	resp := &Response{OutputAudio: c.outputAudio.clone()}
	if c.outputText != nil {
		text := *c.outputText
		resp.OutputText = &text
	}
	return resp
}

func (c *Context) mutation(ctx context.Context, field string) *Mutation {
	return &Mutation{Field: field, Plugin: hook.CallerFrom(ctx), Context: c}
}

func (c *Context) apply(ctx context.Context, pre, post string, m *Mutation, set func()) {
	if c.bus != nil {
		c.bus.Trigger(ctx, pre, m)
	}
	set()
	if c.bus != nil {
		c.bus.Trigger(ctx, post, m)
	}
}
