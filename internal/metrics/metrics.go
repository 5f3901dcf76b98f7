/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the job and row metrics on its own registry, so several collectors can
// coexist in one process (tests, CLI commands).
type Collector struct {
	registry *prometheus.Registry

	jobsAdmitted  prometheus.Counter
	jobsRejected  prometheus.Counter
	jobsFinalized *prometheus.CounterVec
	rowOutcomes   *prometheus.CounterVec
	rowLatency    prometheus.Histogram
	jobsActive    prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "robo32",
			Name:      "jobs_admitted_total",
			Help:      "Total number of jobs admitted for processing",
		}),
		jobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "robo32",
			Name:      "jobs_rejected_total",
			Help:      "Total number of submissions rejected because a job was already processing",
		}),
		jobsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo32",
			Name:      "jobs_finalized_total",
			Help:      "Total number of jobs that reached a terminal status",
		}, []string{"status"}),
		rowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robo32",
			Name:      "rows_processed_total",
			Help:      "Total number of input rows recorded, by outcome",
		}, []string{"status"}),
		rowLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "robo32",
			Name:      "row_latency_seconds",
			Help:      "Time spent cloning a single row",
			Buckets:   prometheus.DefBuckets,
		}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "robo32",
			Name:      "jobs_active",
			Help:      "Number of jobs currently running in this process",
		}),
	}

	c.registry.MustRegister(
		c.jobsAdmitted,
		c.jobsRejected,
		c.jobsFinalized,
		c.rowOutcomes,
		c.rowLatency,
		c.jobsActive,
	)
	return c
}

func (c *Collector) RecordAdmitted() {
	c.jobsAdmitted.Inc()
}

func (c *Collector) RecordRejected() {
	c.jobsRejected.Inc()
}

// RecordFinalized counts a terminal transition.
func (c *Collector) RecordFinalized(status string) {
	c.jobsFinalized.WithLabelValues(status).Inc()
}

// RecordRow counts one ledger outcome and how long the row took.
func (c *Collector) RecordRow(status string, elapsed time.Duration) {
	c.rowOutcomes.WithLabelValues(status).Inc()
	c.rowLatency.Observe(elapsed.Seconds())
}

func (c *Collector) RunStarted() {
	c.jobsActive.Inc()
}

func (c *Collector) RunFinished() {
	c.jobsActive.Dec()
}

// Handler exposes the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
