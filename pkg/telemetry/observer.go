package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shashank-sharma/flowforge/pkg/graphmodel"
)

// SchedulerEventSink implements scheduler.EventSink, turning the scheduler's
// plain (level, message, nodeID) events into per-node spans and the
// execution/duration/success metrics Provider exposes. It's adapted from the
// teacher's TelemetryObserver, which paired typed workflow/node lifecycle
// events into spans; the scheduler has no typed event stream, so this sink
// recovers "started"/"completed" pairing from the fixed message text
// scheduler.Run emits (SPEC_FULL.md §4.4's node start/end of execution).
type SchedulerEventSink struct {
	provider *Provider
	g        *graphmodel.Graph

	mu     sync.Mutex
	spans  map[string]trace.Span
	starts map[string]time.Time
}

// NewSchedulerEventSink creates a sink that records spans/metrics for nodes
// in g through provider. g supplies each node's connector id for metric
// attributes; provider may be nil, in which case every call is a no-op.
func NewSchedulerEventSink(provider *Provider, g *graphmodel.Graph) *SchedulerEventSink {
	return &SchedulerEventSink{
		provider: provider,
		g:        g,
		spans:    make(map[string]trace.Span),
		starts:   make(map[string]time.Time),
	}
}

// Event implements scheduler.EventSink.
func (s *SchedulerEventSink) Event(level, message, nodeID string) {
	if s.provider == nil || nodeID == "" {
		return
	}

	switch {
	case strings.HasSuffix(message, "started"):
		s.handleStart(nodeID)
	case strings.HasSuffix(message, "completed"):
		s.handleEnd(nodeID, true, "")
	case level == "error":
		s.handleEnd(nodeID, false, message)
	case level == "warn":
		s.mu.Lock()
		span := s.spans[nodeID]
		s.mu.Unlock()
		if span != nil {
			span.AddEvent(message)
		}
	}
}

func (s *SchedulerEventSink) handleStart(nodeID string) {
	ctx := context.Background()
	_, span := s.provider.Tracer().Start(ctx, "node.execute",
		trace.WithAttributes(attribute.String("node.id", nodeID)),
	)

	s.provider.RecordSchedulerNodeStart(ctx)

	s.mu.Lock()
	s.spans[nodeID] = span
	s.starts[nodeID] = time.Now()
	s.mu.Unlock()
}

func (s *SchedulerEventSink) handleEnd(nodeID string, success bool, errMsg string) {
	ctx := context.Background()

	s.mu.Lock()
	span, hasSpan := s.spans[nodeID]
	start, hasStart := s.starts[nodeID]
	delete(s.spans, nodeID)
	delete(s.starts, nodeID)
	s.mu.Unlock()

	if !hasSpan {
		return
	}

	var duration time.Duration
	if hasStart {
		duration = time.Since(start)
	}

	connectorID := ""
	if n := s.g.NodeByID(nodeID); n != nil {
		connectorID = n.ConnectorID
	}
	s.provider.RecordNodeExecution(ctx, nodeID, connectorID, duration, success)
	s.provider.RecordSchedulerNodeEnd(ctx)

	if success {
		span.SetStatus(codes.Ok, "node completed successfully")
	} else {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
