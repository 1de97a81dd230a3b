// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package perf

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsSubSystemRoom = "room"
	metricsSubSystemWS   = "ws"
)

// Metrics exposes the room/producer/consumer/transport and WebSocket
// counters the admin /metrics endpoint serves, generalized from the
// teacher's per-call RTC metrics onto the signaling domain's entities.
type Metrics struct {
	registry *prometheus.Registry

	RoomsActive      prometheus.Gauge
	TransportsActive prometheus.Gauge
	ProducersActive  prometheus.Gauge
	ConsumersActive  prometheus.Gauge

	ScreenShareChanges prometheus.Counter

	WSConnections     prometheus.Gauge
	WSMessageCounters *prometheus.CounterVec
}

func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	var m Metrics

	if registry != nil {
		m.registry = registry
	} else {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: namespace,
		}))
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	m.RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: metricsSubSystemRoom,
		Name:      "rooms_active",
		Help:      "Number of rooms with at least one member",
	})
	m.registry.MustRegister(m.RoomsActive)

	m.TransportsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: metricsSubSystemRoom,
		Name:      "transports_active",
		Help:      "Number of active transports",
	})
	m.registry.MustRegister(m.TransportsActive)

	m.ProducersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: metricsSubSystemRoom,
		Name:      "producers_active",
		Help:      "Number of active producers",
	})
	m.registry.MustRegister(m.ProducersActive)

	m.ConsumersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: metricsSubSystemRoom,
		Name:      "consumers_active",
		Help:      "Number of active consumers",
	})
	m.registry.MustRegister(m.ConsumersActive)

	m.ScreenShareChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: metricsSubSystemRoom,
		Name:      "screen_share_changes_total",
		Help:      "Total number of times a room's screen-share slot was granted to a client",
	})
	m.registry.MustRegister(m.ScreenShareChanges)

	m.WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: metricsSubSystemWS,
		Name:      "connections_active",
		Help:      "Number of active WebSocket connections",
	})
	m.registry.MustRegister(m.WSConnections)

	m.WSMessageCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "messages_total",
			Help:      "Total number of sent/received WebSocket messages",
		},
		[]string{"direction"},
	)
	m.registry.MustRegister(m.WSMessageCounters)

	return &m
}

func (m *Metrics) IncWSMessages(direction string) {
	m.WSMessageCounters.With(prometheus.Labels{"direction": direction}).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
