package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame outcomes.
const (
	OutcomeProcessed   = "processed"
	OutcomeDroppedGate = "dropped_gate"
	OutcomeDroppedBusy = "dropped_busy"
	OutcomeClosed      = "closed"
)

var (
	framesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litelens_frames_total",
			Help: "Total number of camera frames by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "litelens_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"}, // normalize, enhance, detect, recognize, identify, translate
	)

	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litelens_detections_total",
			Help: "Total number of published detections",
		},
		[]string{"kind"},
	)

	detectorErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "litelens_detector_errors_total",
			Help: "Total number of failed detector invocations",
		},
	)

	translationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litelens_translations_total",
			Help: "Total number of text pipeline runs by status",
		},
		[]string{"status"}, // success, no_text, undetermined, model_not_ready, error
	)
)
