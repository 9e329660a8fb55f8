// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eva_transport_messages_published_total",
			Help: "Total number of messages published by topic",
		},
		[]string{"topic"},
	)

	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eva_transport_messages_dropped_total",
			Help: "Total number of messages dropped because a subscriber buffer was full",
		},
		[]string{"topic"},
	)

	clientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eva_transport_websocket_clients",
		Help: "Number of connected websocket clients",
	})
)

// RegisterMetrics registers the transport metrics with the given registerer.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(publishedTotal, droppedTotal, clientsConnected)
}
