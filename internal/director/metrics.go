// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package director

import "github.com/prometheus/client_golang/prometheus"

var (
	interactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eva_interactions_total",
			Help: "Total number of interactions by whether output text was produced",
		},
		[]string{"answered"},
	)

	interactionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eva_interaction_duration_seconds",
		Help:    "Interaction pipeline execution time",
		Buckets: prometheus.DefBuckets,
	})

	stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eva_director_stage_failures_total",
			Help: "Total number of failed handlers by pipeline hook",
		},
		[]string{"hook"},
	)

	commandsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eva_director_commands_rejected_total",
		Help: "Total number of client commands that could not be decoded",
	})

	commandsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eva_director_commands_queued",
		Help: "Number of client commands waiting for a free worker",
	})
)

// RegisterMetrics registers the director metrics with the given registerer.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(interactionsTotal, interactionDuration, stageFailures, commandsRejected, commandsQueued)
}
