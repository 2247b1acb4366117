// Copyright 2026 The Swoop Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package swoop

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the arbiter's Prometheus collectors.  Each arbiter owns
// its own registry, so several can live in one test binary.  A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	workers       prometheus.Gauge
	queueDepth    prometheus.Gauge
	spawned       prometheus.Counter
	spawnFailures prometheus.Counter
	reaped        *prometheus.CounterVec
	timeouts      *prometheus.CounterVec
	signals       *prometheus.CounterVec
	dropped       prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swoop_workers",
			Help: "Number of worker processes currently tracked",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swoop_signal_queue_depth",
			Help: "Signals waiting in the arbiter queue",
		}),
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swoop_workers_spawned_total",
			Help: "Worker processes started",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swoop_spawn_failures_total",
			Help: "Worker spawn attempts that failed or were rate limited",
		}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swoop_workers_reaped_total",
			Help: "Worker processes reaped, by exit classification",
		}, []string{"result"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swoop_worker_timeouts_total",
			Help: "Timeout enforcement actions, by signal sent",
		}, []string{"action"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swoop_signals_total",
			Help: "Signals received by the arbiter",
		}, []string{"signal"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swoop_signals_dropped_total",
			Help: "Queued signals dropped because the queue was full",
		}),
	}
	m.reg.MustRegister(
		m.workers, m.queueDepth, m.spawned, m.spawnFailures,
		m.reaped, m.timeouts, m.signals, m.dropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) setWorkers(n int) {
	if m != nil {
		m.workers.Set(float64(n))
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) spawnOK() {
	if m != nil {
		m.spawned.Inc()
	}
}

func (m *Metrics) spawnFailed() {
	if m != nil {
		m.spawnFailures.Inc()
	}
}

func (m *Metrics) reap(result string) {
	if m != nil {
		m.reaped.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) timeout(action string) {
	if m != nil {
		m.timeouts.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) signal(k SignalKind) {
	if m != nil {
		m.signals.WithLabelValues(k.String()).Inc()
	}
}

func (m *Metrics) drop() {
	if m != nil {
		m.dropped.Inc()
	}
}
