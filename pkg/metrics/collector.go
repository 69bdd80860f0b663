// Package metrics exports link activity as Prometheus metrics.
//
// A Collector is a log.Logger: attach it to a Link's protocol logger (alone or
// through log.MultiLogger) and it turns connection, data, schedule and error
// events into counters and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linkmq/linkmq-go/pkg/log"
)

// Collector aggregates protocol events into Prometheus metrics.
type Collector struct {
	connections       *prometheus.CounterVec
	disconnects       prometheus.Counter
	active            prometheus.Gauge
	listeners         prometheus.Gauge
	bytes             *prometheus.CounterVec
	connectAttempts   *prometheus.CounterVec
	handshakeFailures prometheus.Counter
	errors            *prometheus.CounterVec
}

// NewCollector creates a Collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections that completed setup, by direction.",
		}, []string{"direction"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Established connections that were closed.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Currently established connections.",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners_active",
			Help:      "Currently open listening sockets.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Payload bytes transferred, by direction.",
		}, []string{"direction"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Outbound connection attempts, by result.",
		}, []string{"result"}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tls_handshake_failures_total",
			Help:      "TLS handshakes that failed.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors, by layer and operation.",
		}, []string{"layer", "op"}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.connections,
		c.disconnects,
		c.active,
		c.listeners,
		c.bytes,
		c.connectAttempts,
		c.handshakeFailures,
		c.errors,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

// Log implements log.Logger.
func (c *Collector) Log(ev log.Event) {
	switch {
	case ev.Data != nil:
		c.bytes.WithLabelValues(direction(ev.Direction)).Add(float64(ev.Data.Size))
	case ev.StateChange != nil:
		c.stateChange(ev)
	case ev.Schedule != nil:
		switch ev.Schedule.Action {
		case log.ScheduleAttempt:
			c.connectAttempts.WithLabelValues("attempt").Inc()
		case log.ScheduleRefused:
			c.connectAttempts.WithLabelValues("refused").Inc()
		}
	case ev.Error != nil:
		c.errors.WithLabelValues(layer(ev.Error.Layer), ev.Error.Context).Inc()
	}
}

func (c *Collector) stateChange(ev log.Event) {
	sc := ev.StateChange
	switch sc.Entity {
	case log.StateEntityConnection:
		switch {
		case sc.NewState == "CONNECTED":
			c.connections.WithLabelValues(direction(ev.Direction)).Inc()
			c.active.Inc()
		case sc.NewState == "CLOSED" && sc.OldState == "CONNECTED":
			c.disconnects.Inc()
			c.active.Dec()
		}
	case log.StateEntityListener:
		switch sc.NewState {
		case "LISTENING":
			c.listeners.Inc()
		case "CLOSED":
			c.listeners.Dec()
		}
	case log.StateEntityHandshake:
		if sc.NewState == "FAILED" {
			c.handshakeFailures.Inc()
		}
	}
}

func direction(d log.Direction) string {
	if d == log.DirectionOut {
		return "out"
	}
	return "in"
}

func layer(l log.Layer) string {
	switch l {
	case log.LayerSocket:
		return "socket"
	case log.LayerTLS:
		return "tls"
	default:
		return "link"
	}
}

var (
	_ log.Logger           = (*Collector)(nil)
	_ prometheus.Collector = (*Collector)(nil)
)
