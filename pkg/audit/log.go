// Package audit implements the security event log: an append-only in-memory
// ring of guard decisions, mirrored to slog and fanned out to registered
// sinks for the external observability layer.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/telemetry"
)

const defaultCapacity = 4096

// Log records every guard decision. It implements domain.EventSink and is
// safe for concurrent use. Events receive a uuid ID and a monotonically
// increasing sequence number at record time.
type Log struct {
	ring   *ring
	logger *slog.Logger
	seq    atomic.Uint64
	now    func() time.Time

	mu    sync.RWMutex
	sinks []domain.EventSink
}

// NewLog creates an event log with the given ring capacity; capacity <= 0
// selects the default of 4096.
func NewLog(capacity int, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		ring:   newRing(capacity),
		logger: logger,
		now:    time.Now,
	}
}

// AddSink registers an external sink. Sinks must not block; slow consumers
// should buffer internally.
func (l *Log) AddSink(sink domain.EventSink) {
	if sink == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// RecordEvent implements domain.EventSink. Missing ID and timestamp fields
// are filled in; the sequence number is always assigned here. When ctx
// carries a recording span the event is also attached to it.
func (l *Log) RecordEvent(ctx context.Context, event domain.SecurityEvent) {
	event.Sequence = l.seq.Add(1)
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	l.ring.add(event)

	telemetry.AnnotateSecurityEvent(trace.SpanFromContext(ctx), event)

	l.logger.LogAttrs(ctx, levelFor(event.Severity), "security event",
		slog.String("event_id", event.ID),
		slog.Uint64("sequence", event.Sequence),
		slog.String("type", string(event.Type)),
		slog.String("severity", string(event.Severity)),
		slog.String("session_id", event.SessionID),
		slog.String("kind", string(event.Kind)),
		slog.String("rule", event.Rule),
		slog.String("detail", event.Detail),
	)

	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()
	for _, sink := range sinks {
		sink.RecordEvent(ctx, event)
	}
}

// Recent returns the n newest events, oldest first.
func (l *Log) Recent(n int) []domain.SecurityEvent {
	return l.ring.recent(n)
}

// All returns every buffered event, oldest first.
func (l *Log) All() []domain.SecurityEvent {
	return l.ring.all()
}

// Since returns buffered events with a sequence number at or above seq.
func (l *Log) Since(seq uint64) []domain.SecurityEvent {
	return l.ring.fromSequence(seq)
}

// Len reports how many events are currently buffered.
func (l *Log) Len() int {
	return l.ring.len()
}

func levelFor(severity domain.Severity) slog.Level {
	switch severity {
	case domain.SeverityHigh:
		return slog.LevelWarn
	case domain.SeverityMedium:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
