// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPipeline holds Prometheus metrics for the pipeline subsystem.
type metricsPipeline struct {
	once sync.Once

	// Runs
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsFailed    prometheus.Counter
	runsCancelled prometheus.Counter
	runsRejected  prometheus.Counter

	// Steps
	stepsCompleted *prometheus.CounterVec
	stepsFailed    *prometheus.CounterVec

	// Durations
	stepDuration *prometheus.HistogramVec
}

var pipeMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.runsStarted = prometheus.NewCounter(prometheus.CounterOpts{Name: "ckb_pipeline_runs_started_total", Help: "Ejecuciones de pipeline iniciadas"})
		m.runsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "ckb_pipeline_runs_completed_total", Help: "Ejecuciones de pipeline completadas"})
		m.runsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "ckb_pipeline_runs_failed_total", Help: "Ejecuciones de pipeline fallidas"})
		m.runsCancelled = prometheus.NewCounter(prometheus.CounterOpts{Name: "ckb_pipeline_runs_cancelled_total", Help: "Ejecuciones de pipeline canceladas"})
		m.runsRejected = prometheus.NewCounter(prometheus.CounterOpts{Name: "ckb_pipeline_runs_rejected_total", Help: "Ejecuciones rechazadas por límite de capacidad"})

		m.stepsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ckb_pipeline_steps_completed_total", Help: "Pasos completados"}, []string{"step"})
		m.stepsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ckb_pipeline_steps_failed_total", Help: "Pasos fallidos"}, []string{"step"})

		buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900}
		m.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "ckb_pipeline_step_seconds", Help: "Duración de cada paso", Buckets: buckets}, []string{"step"})

		prometheus.MustRegister(
			m.runsStarted, m.runsCompleted, m.runsFailed, m.runsCancelled, m.runsRejected,
			m.stepsCompleted, m.stepsFailed,
			m.stepDuration,
		)
	})
}

// record helpers - used by the manager and instances
func recordRunStarted()  { pipeMetrics.init(); pipeMetrics.runsStarted.Inc() }
func recordRunRejected() { pipeMetrics.init(); pipeMetrics.runsRejected.Inc() }

func recordRunFinished(status Status) {
	pipeMetrics.init()
	switch status {
	case StatusCompleted:
		pipeMetrics.runsCompleted.Inc()
	case StatusFailed:
		pipeMetrics.runsFailed.Inc()
	case StatusCancelled:
		pipeMetrics.runsCancelled.Inc()
	}
}

func recordStepFinished(step string, ok bool, d time.Duration) {
	pipeMetrics.init()
	if ok {
		pipeMetrics.stepsCompleted.WithLabelValues(step).Inc()
	} else {
		pipeMetrics.stepsFailed.WithLabelValues(step).Inc()
	}
	pipeMetrics.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}
