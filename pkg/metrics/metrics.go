// Package metrics exposes Prometheus counters for launches, exits, stops and
// background task failures. Collectors live in a dedicated registry so that
// embedding applications decide whether and where to serve them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StopOutcome labels the terminal state of a single-process stop
type StopOutcome string

const (
	StopOutcomeGraceful StopOutcome = "graceful"
	StopOutcomeKilled   StopOutcome = "killed"
	StopOutcomeNotFound StopOutcome = "not_found"
	StopOutcomeFailed   StopOutcome = "failed"
)

var Registry = prometheus.NewRegistry()

var (
	launchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proctree_launches_total",
		Help: "Total number of processes launched.",
	})

	exitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proctree_exits_total",
		Help: "Total number of observed process exits by exit code class.",
	}, []string{"code_class"})

	stopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proctree_stops_total",
		Help: "Total number of single-process stop operations by outcome.",
	}, []string{"outcome"})

	taskFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proctree_task_failures_total",
		Help: "Total number of background tasks that failed or panicked.",
	})

	childrenSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proctree_children_skipped_total",
		Help: "Total number of child candidates rejected by the start-time fence.",
	})
)

func init() {
	Registry.MustRegister(launchesTotal, exitsTotal, stopsTotal, taskFailuresTotal, childrenSkippedTotal)
}

func RecordLaunch() {
	launchesTotal.Inc()
}

// RecordExit buckets exit codes: 0 is "success", negative (signal) is
// "signaled", everything else "failure"
func RecordExit(exitCode int) {
	exitsTotal.WithLabelValues(exitCodeClass(exitCode)).Inc()
}

func RecordStop(outcome StopOutcome) {
	stopsTotal.WithLabelValues(string(outcome)).Inc()
}

func RecordTaskFailure() {
	taskFailuresTotal.Inc()
}

func RecordChildSkipped() {
	childrenSkippedTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func exitCodeClass(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode < 0:
		return "signaled"
	default:
		return "failure"
	}
}
