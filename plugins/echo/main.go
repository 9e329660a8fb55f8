// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

// Package main implements an echo plugin for Eva.
// It answers "echo <text>" with <text>.
//
// The plugin's install step builds the executable next to its descriptor:
//
//	go build -o echo .
package main

import (
	"context"
	"strings"

	"github.com/evahq/eva/pkg/pluginsdk"
)

const prefix = "echo "

type echo struct{}

func (echo) Hooks() []string {
	return []string{"interaction"}
}

func (echo) HandleEvent(_ context.Context, e pluginsdk.Event) (pluginsdk.Result, error) {
	if e.Responded || e.InputText == nil {
		return pluginsdk.Result{}, nil
	}
	text := strings.TrimSpace(*e.InputText)
	if !strings.HasPrefix(strings.ToLower(text), prefix) {
		return pluginsdk.Result{}, nil
	}
	return pluginsdk.Respond(strings.TrimSpace(text[len(prefix):])), nil
}

func main() {
	pluginsdk.Serve(&pluginsdk.ServeConfig{Handler: echo{}})
}
