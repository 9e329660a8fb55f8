// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package director drives the boot sequence and the interaction pipeline.
package director

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/internal/transport"
)

var tracer = otel.Tracer("eva/director")

// StartupMessage is published on eva_messages when the serve loop starts.
const StartupMessage = "Eva startup successful"

// DefaultWorkers is the default number of concurrent interactions in Serve.
const DefaultWorkers = 8

// Error codes.
const (
	CodeAlreadyBooted = "ALREADY_BOOTED"
	CodeNoTransport   = "NO_TRANSPORT"
)

// ErrNoTransport is returned by Serve and Publish when no transport is set.
var ErrNoTransport = errors.New("director has no transport")

// Loader loads the enabled plugins. *plugin.Manager implements it.
type Loader interface {
	LoadPlugins(ctx context.Context, enabled []string) *plugin.Report
}

// Director owns the boot sequence and runs interactions through the hook
// pipeline.
type Director struct {
	bus       hook.Dispatcher
	loader    Loader
	enabled   []string
	transport transport.Transport
	workers   int
	logger    *slog.Logger
	booted    atomic.Bool
}

// Option configures a Director.
type Option func(*Director)

// WithEnabledPlugins limits boot to the given plugin IDs. Without it every
// discovered plugin is activated.
func WithEnabledPlugins(ids ...string) Option {
	return func(d *Director) { d.enabled = ids }
}

// WithTransport sets the transport used by Serve and Publish.
func WithTransport(t transport.Transport) Option {
	return func(d *Director) { d.transport = t }
}

// WithWorkers sets the number of interactions Serve runs at once.
func WithWorkers(n int) Option {
	return func(d *Director) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLogger sets the director logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Director) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a director firing hooks on bus. loader may be nil, in which
// case boot loads no plugins.
func New(bus hook.Dispatcher, loader Loader, opts ...Option) *Director {
	d := &Director{
		bus:     bus,
		loader:  loader,
		workers: DefaultWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Boot fires pre-boot, loads the plugins and fires post-boot. It may run
// only once.
func (d *Director) Boot(ctx context.Context) (*plugin.Report, error) {
	if !d.booted.CompareAndSwap(false, true) {
		return nil, oops.In("director").Code(CodeAlreadyBooted).Errorf("director already booted")
	}

	ctx, span := tracer.Start(ctx, "director.boot")
	defer span.End()

	d.logger.InfoContext(ctx, "beginning boot sequence")
	d.trigger(ctx, hook.PreBoot, nil)

	report := &plugin.Report{Failed: map[string]error{}}
	if d.loader != nil {
		report = d.loader.LoadPlugins(ctx, d.enabled)
	}
	span.SetAttributes(
		attribute.Int("plugins.activated", len(report.Activated)),
		attribute.Int("plugins.failed", len(report.Failed)),
	)

	d.trigger(ctx, hook.PostBoot, nil)
	d.logger.InfoContext(ctx, "boot sequence complete",
		"activated", len(report.Activated),
		"failed", len(report.Failed))
	return report, nil
}

// Booted reports whether Boot has run.
func (d *Director) Booted() bool {
	return d.booted.Load()
}

// Interact runs req through the interaction pipeline and returns the
// response. Handler failures never abort the pipeline.
func (d *Director) Interact(ctx context.Context, req *interaction.Request) *interaction.Response {
	if req == nil {
		req = &interaction.Request{}
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "director.interact")
	defer span.End()

	if req.HasText() {
		d.logger.DebugContext(ctx, "interaction text provided", "text", req.Text())
	}
	if req.HasAudio() {
		d.logger.DebugContext(ctx, "interaction audio provided", "content_type", req.InputAudio.ContentType)
		if !req.HasText() {
			d.trigger(ctx, hook.VoiceRecognition, req)
		}
	}
	d.trigger(ctx, hook.PreInteractionContext, req)

	ic := interaction.New(d.bus, req)
	span.SetAttributes(attribute.String("interaction.id", ic.ID().String()))

	d.trigger(ctx, hook.PreInteraction, ic)
	d.trigger(ctx, hook.Interaction, ic)
	d.trigger(ctx, hook.PostInteraction, ic)

	if ic.HasOutputText() && ic.OutputAudio() == nil {
		d.trigger(ctx, hook.TextToSpeech, ic)
	}

	resp := ic.Response()
	d.trigger(ctx, hook.PreReturnData, resp)

	responded := ic.HasResponded()
	span.SetAttributes(attribute.Bool("interaction.responded", responded))
	interactionsTotal.WithLabelValues(boolLabel(resp.OutputText != nil)).Inc()
	interactionDuration.Observe(time.Since(start).Seconds())
	d.logger.InfoContext(ctx, "interaction complete",
		"interaction_id", ic.ID().String(),
		"responded", responded,
		"has_text", resp.OutputText != nil,
		"has_audio", resp.OutputAudio != nil,
	)
	return resp
}

// trigger fires one hook inside its own span.
func (d *Director) trigger(ctx context.Context, name string, payload any) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attribute.String("hook", name)))
	defer span.End()

	failures := d.bus.Trigger(ctx, name, payload)
	if len(failures) > 0 {
		stageFailures.WithLabelValues(name).Add(float64(len(failures)))
		span.SetStatus(codes.Error, failures[0].Error())
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
