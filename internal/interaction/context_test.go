// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package interaction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
)

func TestContext_GettersNormalizeAbsentValues(t *testing.T) {
	c := interaction.New(nil, nil)

	assert.Equal(t, "", c.InputText())
	assert.Equal(t, "", c.OutputText())
	assert.Nil(t, c.InputAudio())
	assert.Nil(t, c.OutputAudio())
	assert.False(t, c.HasInputText())
	assert.False(t, c.HasOutputText())
	assert.False(t, c.HasResponded())
	assert.NotEqual(t, c.ID(), interaction.New(nil, nil).ID())
}

func TestContext_CopiesRequest(t *testing.T) {
	req := &interaction.Request{
		InputText:  ptr("hello"),
		InputAudio: &interaction.Audio{Data: []byte{1, 2}, ContentType: "audio/wav"},
	}
	c := interaction.New(nil, req)

	req.SetInputText("changed")
	req.InputAudio.Data[0] = 9

	assert.Equal(t, "hello", c.InputText())
	assert.Equal(t, []byte{1, 2}, c.InputAudio().Data)
	assert.Equal(t, "audio/wav", c.InputAudio().ContentType)
}

func TestContext_StartsWithPrefilledOutput(t *testing.T) {
	req := interaction.NewTextRequest("weather?")
	req.SetOutputText("Sunny")
	req.OutputAudio = &interaction.Audio{Data: []byte{7}, ContentType: "audio/ogg"}
	c := interaction.New(nil, req)

	req.SetOutputText("changed")
	req.OutputAudio.Data[0] = 0

	assert.True(t, c.HasOutputText())
	assert.Equal(t, "Sunny", c.OutputText())
	assert.Equal(t, []byte{7}, c.OutputAudio().Data)
	assert.False(t, c.HasResponded())
	assert.Equal(t, "Sunny", c.Response().Text())
}

func TestContext_ZeroLengthAudioIsPresent(t *testing.T) {
	c := interaction.New(nil, &interaction.Request{InputAudio: &interaction.Audio{Data: []byte{}}})
	require.NotNil(t, c.InputAudio())
	assert.Empty(t, c.InputAudio().Data)
}

func TestContext_Contains(t *testing.T) {
	tests := []struct {
		name    string
		input   *string
		keyword string
		want    bool
	}{
		{"substring", ptr("what is the weather"), "weather", true},
		{"inside a word", ptr("weathered"), "weather", true},
		{"case sensitive", ptr("Weather"), "weather", false},
		{"missing", ptr("hello"), "weather", false},
		{"no input", nil, "weather", false},
		{"empty keyword", ptr("hi"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := interaction.New(nil, &interaction.Request{InputText: tt.input})
			assert.Equal(t, tt.want, c.Contains(tt.keyword))
		})
	}
}

func TestContext_SetOutputTextClaimsResponse(t *testing.T) {
	c := interaction.New(nil, nil)

	c.SetOutputText(context.Background(), "Sunny")

	assert.Equal(t, "Sunny", c.OutputText())
	assert.True(t, c.HasResponded())
}

func TestContext_AmendClearsResponded(t *testing.T) {
	c := interaction.New(nil, nil)
	ctx := context.Background()

	c.SetOutputText(ctx, "Sunny")
	c.SetOutputTextResponding(ctx, "Sunny, 20C", false)

	assert.Equal(t, "Sunny, 20C", c.OutputText())
	assert.False(t, c.HasResponded())
}

func TestContext_MutatorsFirePreAndPostHooks(t *testing.T) {
	bus := hook.NewBus()
	var events []string
	var seen []*interaction.Mutation

	for _, name := range []string{
		hook.PreSetInputText, hook.PostSetInputText,
		hook.PreSetInputAudio, hook.PostSetInputAudio,
		hook.PreSetOutputText, hook.PostSetOutputText,
		hook.PreSetOutputAudio, hook.PostSetOutputAudio,
	} {
		bus.Register("observer", name, func(_ context.Context, payload any) error {
			m := payload.(*interaction.Mutation)
			events = append(events, name+":"+m.Field)
			seen = append(seen, m)
			return nil
		})
	}

	c := interaction.New(bus, nil)
	ctx := hook.WithCaller(context.Background(), "weather")

	c.SetInputText(ctx, "hi")
	c.SetInputAudio(ctx, []byte{1}, "audio/wav")
	c.SetOutputText(ctx, "Sunny")
	c.SetOutputAudio(ctx, []byte{2}, "audio/mpeg")

	assert.Equal(t, []string{
		"pre-set-input-text:input_text", "post-set-input-text:input_text",
		"pre-set-input-audio:input_audio", "post-set-input-audio:input_audio",
		"pre-set-output-text:output_text", "post-set-output-text:output_text",
		"pre-set-output-audio:output_audio", "post-set-output-audio:output_audio",
	}, events)

	for _, m := range seen {
		assert.Equal(t, "weather", m.Plugin)
		assert.Same(t, c, m.Context)
	}
	assert.Same(t, seen[4], seen[5], "pre and post share a payload")
	assert.True(t, seen[4].Responding)
	assert.Equal(t, "Sunny", seen[4].Text)
}

func TestContext_PreHookSeesOldValue(t *testing.T) {
	bus := hook.NewBus()
	c := interaction.New(bus, nil)
	var before, after string

	bus.Register("observer", hook.PreSetOutputText, func(_ context.Context, p any) error {
		before = p.(*interaction.Mutation).Context.OutputText()
		return nil
	})
	bus.Register("observer", hook.PostSetOutputText, func(_ context.Context, p any) error {
		after = p.(*interaction.Mutation).Context.OutputText()
		return nil
	})

	c.SetOutputText(context.Background(), "new")

	assert.Equal(t, "", before)
	assert.Equal(t, "new", after)
}

func TestContext_MutationByCoreIsTagged(t *testing.T) {
	bus := hook.NewBus()
	var plugin string
	bus.Register("observer", hook.PreSetInputText, func(_ context.Context, p any) error {
		plugin = p.(*interaction.Mutation).Plugin
		return nil
	})

	interaction.New(bus, nil).SetInputText(context.Background(), "x")

	assert.Equal(t, hook.Core, plugin)
}

func TestContext_Response(t *testing.T) {
	c := interaction.New(nil, nil)
	resp := c.Response()
	assert.Nil(t, resp.OutputText)
	assert.Nil(t, resp.OutputAudio)

	c.SetOutputText(context.Background(), "Sunny")
	c.SetOutputAudio(context.Background(), []byte{7}, "audio/mpeg")
	resp = c.Response()

	require.NotNil(t, resp.OutputText)
	assert.Equal(t, "Sunny", *resp.OutputText)
	assert.Equal(t, &interaction.Audio{Data: []byte{7}, ContentType: "audio/mpeg"}, resp.OutputAudio)
}

func TestContext_RespondedFollowsLastOutputTextWrite(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := interaction.New(nil, nil)
		ctx := context.Background()
		writes := rapid.SliceOf(rapid.Bool()).Draw(t, "writes")

		want := false
		wantText := ""
		for i, responding := range writes {
			text := rapid.String().Draw(t, "text")
			if rapid.Bool().Draw(t, "noise") {
				c.SetInputText(ctx, text)
				c.SetOutputAudio(ctx, []byte(text), "audio/wav")
			}
			if i%2 == 0 && responding {
				c.SetOutputText(ctx, text)
			} else {
				c.SetOutputTextResponding(ctx, text, responding)
			}
			want = responding
			wantText = text
		}

		if c.HasResponded() != want {
			t.Fatalf("HasResponded() = %v, want %v", c.HasResponded(), want)
		}
		if c.OutputText() != wantText {
			t.Fatalf("OutputText() = %q, want %q", c.OutputText(), wantText)
		}
	})
}

func ptr(s string) *string {
	return &s
}
