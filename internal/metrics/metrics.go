// Package metrics exposes Prometheus instrumentation for the capture and
// transcription pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline counters and gauges.
type Metrics struct {
	BlocksEncoded    prometheus.Counter
	CaptureBacklog   prometheus.Gauge
	BlocksForwarded  prometheus.Counter
	BlocksSuppressed prometheus.Counter
	BytesStreamed    prometheus.Counter

	PartialFragments prometheus.Counter
	FinalFragments   prometheus.Counter
	MalformedEvents  prometheus.Counter

	AnalysisCalls    *prometheus.CounterVec
	AnalysisFailures *prometheus.CounterVec
	DebounceReplaced prometheus.Counter

	SessionActive prometheus.Gauge
}

// New creates metrics registered against reg. Pass a fresh registry in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		BlocksEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_audio_blocks_encoded_total",
			Help: "Audio blocks produced by the capture encoder",
		}),
		CaptureBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medscribe_audio_capture_backlog_blocks",
			Help: "Encoded blocks queued ahead of the dispatch consumer",
		}),
		BlocksForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_audio_blocks_forwarded_total",
			Help: "Audio blocks forwarded to the transcription transport",
		}),
		BlocksSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_audio_blocks_suppressed_total",
			Help: "Audio blocks captured but not forwarded (paused or detached)",
		}),
		BytesStreamed: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_audio_bytes_streamed_total",
			Help: "PCM bytes streamed to the transcription transport",
		}),
		PartialFragments: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_transcript_partials_total",
			Help: "Partial transcript fragments received",
		}),
		FinalFragments: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_transcript_finals_total",
			Help: "Final transcript fragments received",
		}),
		MalformedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_transport_malformed_events_total",
			Help: "Transport events dropped because they could not be decoded",
		}),
		AnalysisCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medscribe_analysis_calls_total",
			Help: "Analysis collaborator calls by kind",
		}, []string{"kind"}),
		AnalysisFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medscribe_analysis_failures_total",
			Help: "Failed analysis collaborator calls by kind",
		}, []string{"kind"}),
		DebounceReplaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_analysis_debounce_replaced_total",
			Help: "Pending analysis tokens replaced before firing",
		}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medscribe_session_active",
			Help: "Whether a recording or demo session is active",
		}),
	}
}
