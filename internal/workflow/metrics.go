package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_state_transitions_total",
		Help: "Reader workflow state transitions",
	}, []string{"from", "to"})

	metricInterruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reader_interruptions_total",
		Help: "Child speech interruptions during waiting, playing or silence timing",
	})

	metricAutoAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reader_auto_advances_total",
		Help: "Page turns triggered by the silence window elapsing",
	})

	metricManualSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_manual_skips_total",
		Help: "Manual page skips",
	}, []string{"direction"})

	metricPlaybackErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reader_playback_errors_total",
		Help: "Narration playback failures",
	})

	metricNavigationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reader_navigation_errors_total",
		Help: "Page navigation failures",
	})

	metricPreRollArms = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reader_pre_roll_arms_total",
		Help: "Pre-roll timer arms",
	})

	metricSilenceArms = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reader_silence_arms_total",
		Help: "Silence-window timer arms",
	})
)
