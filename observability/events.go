package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"lendcore/core/events"
	"lendcore/observability/logging"
)

// EventCounter counts pool events by type before forwarding them.
type EventCounter struct {
	next   events.Emitter
	counts *prometheus.CounterVec
}

// NewEventCounter wraps next, which may be nil.
func NewEventCounter(reg prometheus.Registerer, next events.Emitter) (*EventCounter, error) {
	counts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lending",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Pool events segmented by type.",
	}, []string{"type"})
	if err := reg.Register(counts); err != nil {
		return nil, fmt.Errorf("register event metrics: %w", err)
	}
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &EventCounter{next: next, counts: counts}, nil
}

// Emit implements events.Emitter.
func (c *EventCounter) Emit(e events.Event) {
	if e == nil {
		return
	}
	c.counts.WithLabelValues(e.EventType()).Inc()
	c.next.Emit(e)
}

// EventLogger writes each event as a debug record. Account attributes are
// shortened, reserve data is public and logged as is.
type EventLogger struct {
	logger *slog.Logger
}

func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger.With("component", "events")}
}

// Emit implements events.Emitter.
func (l *EventLogger) Emit(e events.Event) {
	if e == nil || !l.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	rendered, ok := events.Render(e)
	if !ok {
		l.logger.Debug("pool event", "type", e.EventType())
		return
	}
	keys := make([]string, 0, len(rendered.Attributes))
	for k := range rendered.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)+1)
	args = append(args, slog.String("type", rendered.Type))
	for _, k := range keys {
		v := rendered.Attributes[k]
		if logging.IsAccountKey(k) {
			v = logging.MaskAddress(v)
		}
		args = append(args, slog.String(k, v))
	}
	l.logger.Debug("pool event", args...)
}
