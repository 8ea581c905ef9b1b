// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes generation metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/rulegen/pkg/constrain"
)

// Collector records engine and server activity. It implements
// constrain.Observer.
type Collector struct {
	attempts    *prometheus.CounterVec
	violations  *prometheus.CounterVec
	generations *prometheus.CounterVec
	tokens      prometheus.Counter
	duration    *prometheus.HistogramVec
	rateLimited prometheus.Counter
	fetches     *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		// attempts tracks every provider call by its outcome
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rulegen_generation_attempts_total",
				Help: "Total generation attempts by outcome",
			},
			[]string{"outcome"},
		),

		// violations tracks catalog violations by offending field
		violations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rulegen_catalog_violations_total",
				Help: "Total catalog violations by field",
			},
			[]string{"field"},
		),

		generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rulegen_generations_total",
				Help: "Total constrained generations by final status",
			},
			[]string{"status"},
		),

		tokens: f.NewCounter(prometheus.CounterOpts{
			Name: "rulegen_tokens_total",
			Help: "Total tokens consumed across all attempts",
		}),

		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rulegen_generation_duration_seconds",
				Help:    "Wall time of generation requests by kind",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"kind"},
		),

		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "rulegen_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		}),

		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rulegen_upstream_fetches_total",
				Help: "Total upstream fetches by resource and result",
			},
			[]string{"resource", "result"},
		),
	}
}

// ObserveAttempt implements constrain.Observer.
func (c *Collector) ObserveAttempt(_ int, outcome string, tokens int) {
	c.attempts.WithLabelValues(outcome).Inc()
	if tokens > 0 {
		c.tokens.Add(float64(tokens))
	}
}

// ObserveViolations implements constrain.Observer.
func (c *Collector) ObserveViolations(violations []constrain.Violation) {
	for _, v := range violations {
		c.violations.WithLabelValues(v.Field).Inc()
	}
}

// ObserveResult implements constrain.Observer.
func (c *Collector) ObserveResult(success bool, _ int, _ int) {
	status := "exhausted"
	if success {
		status = "succeeded"
	}
	c.generations.WithLabelValues(status).Inc()
}

// ObserveDuration records the wall time of one request.
func (c *Collector) ObserveDuration(kind string, d time.Duration) {
	c.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// RateLimited counts a rejected request.
func (c *Collector) RateLimited() {
	c.rateLimited.Inc()
}

// ObserveFetch counts an upstream fetch.
func (c *Collector) ObserveFetch(resource string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.fetches.WithLabelValues(resource, result).Inc()
}

var _ constrain.Observer = (*Collector)(nil)
