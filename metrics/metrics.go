// Package metrics holds the Prometheus collectors for the controller and
// the job engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandDuration is the controller round trip, write to completion
	// marker.
	CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gpnp_controller_command_duration_seconds",
		Help:    "Time from sending a controller command to its completion marker",
		Buckets: prometheus.DefBuckets,
	})

	// CommandErrors counts failed commands by kind (rejected/timeout/closed).
	CommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpnp_controller_command_errors_total",
		Help: "Controller commands that did not complete with ok",
	}, []string{"kind"})

	// Placements counts placements by result: placed, or skipped when no
	// feeder or head could serve them.
	Placements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpnp_job_placements_total",
		Help: "Placements processed by the job engine",
	}, []string{"result"})

	// JobErrors counts errors reported by the job engine, by kind.
	JobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpnp_job_errors_total",
		Help: "Errors reported while running jobs",
	}, []string{"kind"})

	// JobState is the numeric engine state (0 stopped, 1 running, 2 paused).
	JobState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpnp_job_state",
		Help: "Current job engine state",
	})

	// Runs counts completed job runs.
	Runs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpnp_job_runs_total",
		Help: "Job runs that reached completion or were stopped",
	})
)
