// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package goplugin

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/pkg/pluginsdk"
)

// newEvent flattens a hook payload into the wire event.
func newEvent(name string, payload any) pluginsdk.Event {
	e := pluginsdk.Event{Hook: name}
	switch p := payload.(type) {
	case *interaction.Context:
		fillContext(&e, p)
	case *interaction.Mutation:
		e.Field = p.Field
		e.Text = p.Text
		e.Audio = toSDKAudio(p.Audio)
		e.Responding = p.Responding
		e.Plugin = p.Plugin
		if p.Context != nil {
			fillContext(&e, p.Context)
		}
	case *interaction.Request:
		e.InputText = p.InputText
		e.InputAudio = toSDKAudio(p.InputAudio)
		e.OutputText = p.OutputText
		e.OutputAudio = toSDKAudio(p.OutputAudio)
	case *interaction.Response:
		e.OutputText = p.OutputText
		e.OutputAudio = toSDKAudio(p.OutputAudio)
	case *interaction.Broadcast:
		e.Topic = p.Topic
		e.Message = p.Message
	case *hook.LogEntry:
		e.Level = p.Level
		e.Message = p.Message
		e.Attrs = logAttrs(p.Attrs)
		e.Plugin = p.Plugin
	case *plugin.Report:
		e.Activated = p.Activated
		if len(p.Failed) > 0 {
			e.Failed = make(map[string]string, len(p.Failed))
			for _, id := range p.FailedIDs() {
				e.Failed[id] = p.Failed[id].Error()
			}
		}
	}
	return e
}

// logAttrs keeps attrs that encode as JSON and renders the rest as text.
func logAttrs(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch x := v.(type) {
		case nil, string, bool, int64, uint64, float64:
			out[k] = x
		case error:
			out[k] = x.Error()
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

func fillContext(e *pluginsdk.Event, c *interaction.Context) {
	e.InteractionID = c.ID().String()
	if c.HasInputText() {
		text := c.InputText()
		e.InputText = &text
	}
	if c.HasOutputText() {
		text := c.OutputText()
		e.OutputText = &text
	}
	e.InputAudio = toSDKAudio(c.InputAudio())
	e.OutputAudio = toSDKAudio(c.OutputAudio())
	e.Responded = c.HasResponded()
}

// applyResult writes res into payload. It reports false when res carries
// changes the payload cannot take.
func applyResult(ctx context.Context, payload any, res pluginsdk.Result) bool {
	if res.Empty() {
		return true
	}
	switch p := payload.(type) {
	case *interaction.Context:
		applyContext(ctx, p, res)
		return res.Message == nil
	case *interaction.Mutation:
		if p.Context == nil {
			return false
		}
		applyContext(ctx, p.Context, res)
		return res.Message == nil
	case *interaction.Request:
		if res.InputText != nil {
			p.SetInputText(*res.InputText)
		}
		if res.InputAudio != nil {
			p.InputAudio = fromSDKAudio(res.InputAudio)
		}
		if res.OutputText != nil {
			p.SetOutputText(*res.OutputText)
		}
		if res.OutputAudio != nil {
			p.OutputAudio = fromSDKAudio(res.OutputAudio)
		}
		return res.Message == nil
	case *interaction.Response:
		if res.OutputText != nil {
			p.SetOutputText(*res.OutputText)
		}
		if res.OutputAudio != nil {
			p.OutputAudio = fromSDKAudio(res.OutputAudio)
		}
		return res.InputText == nil && res.InputAudio == nil && res.Message == nil
	case *interaction.Broadcast:
		if res.Message != nil {
			p.Message = *res.Message
		}
		return res.InputText == nil && res.InputAudio == nil && res.OutputText == nil && res.OutputAudio == nil
	default:
		return false
	}
}

// applyContext goes through the Context mutators so the pre-set and
// post-set hooks fire.
func applyContext(ctx context.Context, c *interaction.Context, res pluginsdk.Result) {
	if res.InputText != nil {
		c.SetInputText(ctx, *res.InputText)
	}
	if res.InputAudio != nil {
		c.SetInputAudio(ctx, res.InputAudio.Data, res.InputAudio.ContentType)
	}
	if res.OutputText != nil {
		c.SetOutputTextResponding(ctx, *res.OutputText, !res.Amend)
	}
	if res.OutputAudio != nil {
		c.SetOutputAudio(ctx, res.OutputAudio.Data, res.OutputAudio.ContentType)
	}
}

func toSDKAudio(a *interaction.Audio) *pluginsdk.Audio {
	if a == nil {
		return nil
	}
	return &pluginsdk.Audio{Data: a.Data, ContentType: a.ContentType}
}

func fromSDKAudio(a *pluginsdk.Audio) *interaction.Audio {
	if a == nil {
		return nil
	}
	return &interaction.Audio{Data: a.Data, ContentType: a.ContentType}
}

// slogWriter forwards plugin process output to the logger line by line.
type slogWriter struct {
	logger *slog.Logger
	stream string
}

func (w slogWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) > 0 {
			w.logger.Info(string(line), "stream", w.stream)
		}
	}
	return len(p), nil
}
