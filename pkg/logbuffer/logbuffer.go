// Package logbuffer accumulates one execution's structured log events and
// flushes them to the execution record under a dual time/size trigger
// (SPEC_FULL.md §4.6), so per-event persistence doesn't starve the scheduler
// and pure end-of-run persistence doesn't starve live observers.
package logbuffer

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FlushInterval and FlushBatch are the dual trigger thresholds (SPEC_FULL.md §4.6).
const (
	FlushInterval = 2 * time.Second
	FlushBatch    = 10
)

func init() {
	// zerolog defaults its timestamp key to "time"; every zerolog.Logger in
	// this process (including pkg/server's request logger) uses "timestamp"
	// instead, matching the Event field this package persists.
	zerolog.TimestampFieldName = "timestamp"
}

// Event is one structured log line, carrying the same field set (timestamp,
// level, message, execution_id, workflow_id, node_id) whether it ends up in
// the in-memory buffer, the flushed JSON array, or the stdout mirror
// (SPEC_FULL.md §4.6). Buffer.Event constructs exactly one Event per call and
// feeds it to both mirrorEvent (zerolog, for the stdout line) and the
// buffered slice (encoding/json, for the persisted array), so the two paths
// can never drift apart on field names.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	ExecutionID string    `json:"execution_id,omitempty"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	NodeID      string    `json:"node_id,omitempty"`
}

// TerminalInfo accompanies the final forced flush on a status transition to
// completed/failed/cancelled (SPEC_FULL.md §4.6).
type TerminalInfo struct {
	Status       string
	EndTime      time.Time
	DurationMs   int64
	ErrorMessage string
	Results      map[string]interface{}
}

// FlushFunc persists a batch of events to the execution record. terminal is
// non-nil only for the final, status-closing flush.
type FlushFunc func(events []Event, terminal *TerminalInfo)

// Buffer is one execution's mutex-guarded log accumulator.
type Buffer struct {
	mu          sync.Mutex
	events      []Event
	lastFlush   time.Time
	onFlush     FlushFunc
	mirror      zerolog.Logger
	executionID string
	workflowID  string
}

// New creates a buffer that mirrors every event through zerolog to w (os.Stdout
// if nil) and invokes onFlush whenever the dual trigger fires or ForceFlush
// is called.
func New(executionID, workflowID string, onFlush FlushFunc, w io.Writer) *Buffer {
	if w == nil {
		w = os.Stdout
	}
	return &Buffer{
		executionID: executionID,
		workflowID:  workflowID,
		lastFlush:   time.Now(),
		onFlush:     onFlush,
		mirror:      zerolog.New(w).With().Timestamp().Logger(),
	}
}

// Event builds one Event and both mirrors it through zerolog and appends it
// to the buffered slice, flushing if the dual trigger is satisfied. This
// method's signature makes *Buffer satisfy scheduler.EventSink without
// logbuffer importing the scheduler package.
func (b *Buffer) Event(level, message, nodeID string) {
	ev := Event{
		Timestamp:   time.Now(),
		Level:       level,
		Message:     message,
		ExecutionID: b.executionID,
		WorkflowID:  b.workflowID,
		NodeID:      nodeID,
	}
	b.mirrorEvent(ev)

	b.mu.Lock()
	b.events = append(b.events, ev)
	due := time.Since(b.lastFlush) >= FlushInterval || len(b.events) >= FlushBatch
	var batch []Event
	if due {
		batch = b.events
		b.events = nil
		b.lastFlush = time.Now()
	}
	b.mu.Unlock()

	if due && b.onFlush != nil {
		b.onFlush(batch, nil)
	}
}

func (b *Buffer) mirrorEvent(ev Event) {
	var e *zerolog.Event
	switch ev.Level {
	case "warn":
		e = b.mirror.Warn()
	case "error":
		e = b.mirror.Error()
	default:
		e = b.mirror.Info()
	}
	if ev.ExecutionID != "" {
		e = e.Str("execution_id", ev.ExecutionID)
	}
	if ev.WorkflowID != "" {
		e = e.Str("workflow_id", ev.WorkflowID)
	}
	if ev.NodeID != "" {
		e = e.Str("node_id", ev.NodeID)
	}
	e.Msg(ev.Message)
}

// ForceFlush drains any buffered events and persists them together with
// terminal status fields, per SPEC_FULL.md §4.6's "terminal transitions
// force a final flush" rule.
func (b *Buffer) ForceFlush(info TerminalInfo) {
	b.mu.Lock()
	batch := b.events
	b.events = nil
	b.lastFlush = time.Now()
	b.mu.Unlock()

	if b.onFlush != nil {
		b.onFlush(batch, &info)
	}
}
