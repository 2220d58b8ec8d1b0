// Package telemetry consumes the frames layers publish on the telemetry
// topic. Two sinks exist: a slog sink that logs every frame, and a
// prometheus recorder that turns frames into metrics for /metrics.
package telemetry

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
)

// Frame value keys. Layers populate these in Telemetry.Values.
const (
	KeyState           = "state"
	KeyCurrentPlaylist = "current_playlist"
	KeyCurrentTrack    = "current_track"
	KeyTrackIndex      = "current_track_index"
	KeyScheduleTS      = "schedule_ts"
	KeyMessage         = "message"
)

// Layer states reported in KeyState.
const (
	StateUninitialized = "uninitialized"
	StateLoaded        = "loaded"
	StatePlaying       = "playing"
	StateWaiting       = "waiting"
	StateStopped       = "stopped"
	StateError         = "error"
)

var knownStates = []string{
	StateUninitialized, StateLoaded, StatePlaying,
	StateWaiting, StateStopped, StateError,
}

// LogSink logs every telemetry frame.
type LogSink struct {
	logger *slog.Logger
}

var _ message.Sink = (*LogSink)(nil)

// NewLogSink creates the sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.Default(logger).With("component", "telemetry")}
}

// Name implements message.Sink.
func (s *LogSink) Name() string { return "telemetry-log" }

// Accept logs the frame. Non-telemetry messages are ignored.
func (s *LogSink) Accept(msg message.Message) error {
	t, ok := msg.(message.Telemetry)
	if !ok {
		return nil
	}
	attrs := make([]any, 0, 2*len(t.Values)+4)
	attrs = append(attrs, "layer", t.Name, "ts", t.TS)
	for k, v := range t.Values {
		attrs = append(attrs, k, v)
	}
	s.logger.Info("telemetry", attrs...)
	return nil
}

// Recorder turns telemetry frames into prometheus metrics.
type Recorder struct {
	frames     *prometheus.CounterVec
	trackIndex *prometheus.GaugeVec
	state      *prometheus.GaugeVec
	errors     *prometheus.CounterVec

	mu sync.Mutex
}

var _ message.Sink = (*Recorder)(nil)

// NewRecorder creates the recorder and registers its collectors with reg.
// A nil reg uses the default registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billboard",
			Name:      "telemetry_frames_total",
			Help:      "Telemetry frames received per layer.",
		}, []string{"layer"}),
		trackIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "billboard",
			Name:      "layer_track_index",
			Help:      "Current track index per layer.",
		}, []string{"layer"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "billboard",
			Name:      "layer_state",
			Help:      "Layer state as a one-hot gauge.",
		}, []string{"layer", "state"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billboard",
			Name:      "layer_errors_total",
			Help:      "Frames reporting the error state per layer.",
		}, []string{"layer"}),
	}
	reg.MustRegister(r.frames, r.trackIndex, r.state, r.errors)
	return r
}

// Name implements message.Sink.
func (r *Recorder) Name() string { return "telemetry-recorder" }

// Accept records the frame. Non-telemetry messages are ignored.
func (r *Recorder) Accept(msg message.Message) error {
	t, ok := msg.(message.Telemetry)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames.WithLabelValues(t.Name).Inc()

	if idx, ok := t.Values[KeyTrackIndex]; ok {
		switch v := idx.(type) {
		case int:
			r.trackIndex.WithLabelValues(t.Name).Set(float64(v))
		case float64:
			r.trackIndex.WithLabelValues(t.Name).Set(v)
		}
	}

	if state, ok := t.Values[KeyState].(string); ok {
		for _, s := range knownStates {
			v := 0.0
			if s == state {
				v = 1.0
			}
			r.state.WithLabelValues(t.Name, s).Set(v)
		}
		if state == StateError {
			r.errors.WithLabelValues(t.Name).Inc()
		}
	}
	return nil
}
