package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	Recording = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dixi_recording",
		Help: "1 while the microphone is being captured",
	})
	TurnsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dixi_turns_in_flight",
		Help: "Number of message turns currently being processed",
	})
)

// Counters
var (
	RecordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dixi_recordings_total",
		Help: "Recording attempts by outcome",
	}, []string{"outcome"})
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dixi_turns_total",
		Help: "Message turns by input kind, mode and outcome",
	}, []string{"input", "mode", "outcome"})
	PlaybackSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dixi_playback_sessions_total",
		Help: "Playback sessions started by backend",
	}, []string{"backend"})
	PlaybackErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dixi_playback_errors_total",
		Help: "Absorbed playback backend failures by backend",
	}, []string{"backend"})
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dixi_store_errors_total",
		Help: "Message store failures by operation",
	}, []string{"op"})
	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dixi_triggers_total",
		Help: "Side-channel actions dispatched by kind and outcome",
	}, []string{"action", "outcome"})
	ShakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dixi_shakes_total",
		Help: "Detected shake gestures by outcome",
	}, []string{"outcome"})
)

// Histograms
var (
	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dixi_stage_duration_ms",
		Help:    "Pipeline stage duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
	}, []string{"stage"})
)
