// Package metrics holds the Prometheus collectors for live sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livetutor"

var (
	FramesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_frames_sent_total",
		Help:      "Microphone frames sent upstream.",
	})
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_frames_dropped_total",
		Help:      "Microphone frames dropped because the send queue was full.",
	})
	ChunksScheduled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_chunks_scheduled_total",
		Help:      "Model audio chunks scheduled for playback.",
	})
	DecodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_decode_failures_total",
		Help:      "Model audio chunks dropped because they could not be decoded.",
	})
	TranscriptUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcript_updates_total",
		Help:      "Transcript updates by speaker and finality.",
	}, []string{"speaker", "final"})
	Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_sessions_total",
		Help:      "Live sessions by terminal outcome.",
	}, []string{"outcome"})
	SessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_session_state",
		Help:      "Current controller state (0 disconnected, 1 connecting, 2 connected, 3 error).",
	})
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Unary Gemini calls by kind and result.",
	}, []string{"kind", "result"})
)

var all = []prometheus.Collector{
	FramesSent, FramesDropped, ChunksScheduled, DecodeFailures,
	TranscriptUpdates, Sessions, SessionState, UpstreamRequests,
}

// NewRegistry returns a registry with every collector plus runtime metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range all {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
