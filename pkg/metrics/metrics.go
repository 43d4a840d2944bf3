// Package metrics provides Prometheus metrics for monitoring
package metrics

import (
	"time"

	"github.com/cross19xx/eas-build/pkg/build"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal is the total number of HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easbuild_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration is the HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easbuild_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// BuildsTotal is the total number of finished builds
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easbuild_builds_total",
			Help: "Total number of finished builds",
		},
		[]string{"status"}, // completed, failed
	)

	// BuildDuration is the build duration in seconds
	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easbuild_build_duration_seconds",
			Help:    "Build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"status"},
	)

	// StepsTotal is the total number of finished steps
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easbuild_steps_total",
			Help: "Total number of finished build steps",
		},
		[]string{"status"}, // succeeded, failed
	)

	// StepDuration is the step duration in seconds
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easbuild_step_duration_seconds",
			Help:    "Build step duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		},
		[]string{"status"},
	)

	// ArtifactsTotal is the total number of recorded artifacts
	ArtifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easbuild_artifacts_total",
			Help: "Total number of recorded artifacts",
		},
		[]string{"type"},
	)

	// BuildsInProgress is the number of builds currently running
	BuildsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "easbuild_builds_in_progress",
			Help: "Number of builds currently running",
		},
	)
)

// BuildObserver records workflow progress in the package metrics.
type BuildObserver struct{}

// NewBuildObserver creates a BuildObserver.
func NewBuildObserver() *BuildObserver {
	return &BuildObserver{}
}

// StepStarted implements build.Observer.
func (o *BuildObserver) StepStarted(workflow string, index int, stepID string) {}

// StepFinished implements build.Observer.
func (o *BuildObserver) StepFinished(workflow string, index int, stepID string, duration time.Duration, artifacts []build.Artifact, err error) {
	status := string(build.StepSucceeded)
	if err != nil {
		status = string(build.StepFailed)
	}
	StepsTotal.WithLabelValues(status).Inc()
	StepDuration.WithLabelValues(status).Observe(duration.Seconds())

	for _, a := range artifacts {
		ArtifactsTotal.WithLabelValues(a.Type).Inc()
	}
}

// WorkflowFinished implements build.Observer.
func (o *BuildObserver) WorkflowFinished(workflow string, status build.WorkflowStatus, duration time.Duration) {
	BuildsTotal.WithLabelValues(string(status)).Inc()
	BuildDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

var _ build.Observer = (*BuildObserver)(nil)
