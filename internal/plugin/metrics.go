// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import "github.com/prometheus/client_golang/prometheus"

// Activation results recorded by ActivationsTotal.
const (
	ResultActivated = "activated"
	ResultFailed    = "failed"
)

// ActivationsTotal counts plugin activation attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var ActivationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eva_plugin_activations_total",
		Help: "Total number of plugin activation attempts by result",
	},
	[]string{"result"},
)

// ActivePlugins is the number of plugins with a bound module.
var ActivePlugins = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "eva_plugins_active",
	Help: "Number of activated plugins",
})

// RegisterMetrics registers plugin package metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ActivationsTotal)
	reg.MustRegister(ActivePlugins)
}
