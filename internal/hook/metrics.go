// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package hook

import "github.com/prometheus/client_golang/prometheus"

var (
	triggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eva_hook_triggers_total",
			Help: "Total number of hook triggers by hook name",
		},
		[]string{"hook"},
	)

	handlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eva_hook_handler_failures_total",
			Help: "Total number of failed hook handler invocations by hook and plugin",
		},
		[]string{"hook", "plugin"},
	)

	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eva_hook_handler_duration_seconds",
			Help:    "Hook handler execution time by hook",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"hook"},
	)
)

// RegisterMetrics registers the hook metrics with the given registerer.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(triggersTotal, handlerFailures, handlerDuration)
}
