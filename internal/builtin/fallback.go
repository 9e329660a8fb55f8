// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package builtin

import (
	"context"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/plugin"
)

// FallbackID is the ID of the fallback plugin.
const FallbackID = "fallback"

// DefaultFallbackMessage is sent when no plugin answered.
const DefaultFallbackMessage = "I'm sorry, I don't know how to help with that."

var fallbackSchema = []byte(`{
  "type": "object",
  "properties": {
    "message": {"type": "string", "minLength": 1, "default": "` + DefaultFallbackMessage + `"}
  },
  "additionalProperties": false
}`)

// Fallback answers interactions nothing else answered.
func Fallback() plugin.Builtin {
	return plugin.Builtin{
		ID: FallbackID,
		Manifest: plugin.Manifest{
			Name:        "Fallback",
			Description: "Answers when no other plugin did.",
			Version:     "1.0.0",
		},
		Schema: fallbackSchema,
		New: func(cfg *plugin.Config) (plugin.Plugin, error) {
			msg := DefaultFallbackMessage
			if cfg != nil && cfg.String("message") != "" {
				msg = cfg.String("message")
			}
			return &fallback{message: msg}, nil
		},
	}
}

type fallback struct {
	message string
}

func (f *fallback) Register(r *hook.Registrar) {
	r.On(hook.PostInteraction, f.onPostInteraction)
}

// An amended answer clears the responded flag but keeps the text, so both
// are checked.
func (f *fallback) onPostInteraction(ctx context.Context, payload any) error {
	ic, ok := payload.(*interaction.Context)
	if !ok || ic.HasResponded() || ic.HasOutputText() {
		return nil
	}
	ic.SetOutputText(ctx, f.message)
	return nil
}
