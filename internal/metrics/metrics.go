/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package metrics provides Prometheus metrics for TopicMQ.

METRIC CATEGORIES:
==================
- Connections: active, accepted, handshake failures
- Messages: received by command, bad frames
- Delivery: deliveries by codec, failed deliveries, fan-out size
- Topics: published topics, tree nodes

PROMETHEUS ENDPOINT:
====================
Metrics are exposed at /metrics in Prometheus text format.

	topicmq_connections_active 42
	topicmq_messages_received_total{command="PUBLISH"} 12345
	topicmq_deliveries_total{codec="JSON"} 40210
	topicmq_publish_fanout_bucket{le="4"} 11800

A nil *Metrics is valid and records nothing.
*/
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"topicmq/internal/config"
	"topicmq/internal/logging"
)

const namespace = "topicmq"

// Metrics holds all TopicMQ collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
	handshakeFailures *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	badFrames         prometheus.Counter
	deliveries        *prometheus.CounterVec
	deliveryFailures  prometheus.Counter
	encodeFailures    *prometheus.CounterVec
	fanout            prometheus.Histogram
	publishLatency    prometheus.Histogram
	publishedTopics   prometheus.Gauge
	treeNodes         prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Registered connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections accepted, by transport.",
		}, []string{"transport"}),
		handshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Connections abandoned during the handshake, by reason.",
		}, []string{"reason"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from registered clients, by command.",
		}, []string{"command"}),
		badFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bad_frames_total",
			Help:      "Frames that could not be decoded into a message.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Publish messages delivered to subscribers, by subscriber codec.",
		}, []string{"codec"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Deliveries that failed and closed the subscriber.",
		}),
		encodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_failures_total",
			Help:      "Deliveries skipped because the publish could not be framed in the subscriber codec.",
		}, []string{"codec"}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_fanout",
			Help:      "Subscribers resolved per publish.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 64, 256, 1024},
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time to store and fan out one publish.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		publishedTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "published_topics",
			Help:      "Topics that have received at least one publish.",
		}),
		treeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topic_tree_nodes",
			Help:      "Nodes in the topic tree, including the root.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionsActive,
		m.connectionsTotal,
		m.handshakeFailures,
		m.messagesReceived,
		m.badFrames,
		m.deliveries,
		m.deliveryFailures,
		m.encodeFailures,
		m.fanout,
		m.publishLatency,
		m.publishedTopics,
		m.treeNodes,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionAccepted(transport string) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnectionRegistered() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) HandshakeFailed(reason string) {
	if m == nil {
		return
	}
	m.handshakeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) MessageReceived(command string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(command).Inc()
}

func (m *Metrics) BadFrame() {
	if m == nil {
		return
	}
	m.badFrames.Inc()
}

func (m *Metrics) Delivered(codec string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(codec).Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

// EncodeFailed records a delivery skipped for a subscriber whose codec could
// not carry the publish.
func (m *Metrics) EncodeFailed(codec string) {
	if m == nil {
		return
	}
	m.encodeFailures.WithLabelValues(codec).Inc()
}

// Published records one routed publish.
func (m *Metrics) Published(fanout int, took time.Duration) {
	if m == nil {
		return
	}
	m.fanout.Observe(float64(fanout))
	m.publishLatency.Observe(took.Seconds())
}

// SetTopicStats updates the topic gauges.
func (m *Metrics) SetTopicStats(published, nodes int) {
	if m == nil {
		return
	}
	m.publishedTopics.Set(float64(published))
	m.treeNodes.Set(float64(nodes))
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	config  config.MetricsConfig
	metrics *Metrics
	server  *http.Server
	ln      net.Listener
	logger  *logging.Logger
	extra   map[string]http.Handler
}

// NewServer creates a new metrics server.
func NewServer(cfg config.MetricsConfig, m *Metrics) *Server {
	return &Server{
		config:  cfg,
		metrics: m,
		logger:  logging.NewLogger("metrics"),
	}
}

// Handle mounts an additional handler, such as health checks, next to
// /metrics. It must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	if s.extra == nil {
		s.extra = make(map[string]http.Handler)
	}
	s.extra[pattern] = h
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	for pattern, h := range s.extra {
		mux.Handle(pattern, h)
	}
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting metrics server", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
