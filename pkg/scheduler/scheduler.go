// Package scheduler runs a compiled workflow graph to completion: a ready
// queue seeded with source nodes, a bounded worker pool, and mutex-guarded
// shared state for visited/results/errors (SPEC_FULL.md §4.4). It is the
// Go-idiomatic descendant of the teacher's level-based parallel executor
// (parallel_executor.go), generalized from static DAG levels to a dynamic
// push-when-ready queue so a node starts the instant its last input lands
// rather than waiting for every sibling in its level to finish.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
	"github.com/shashank-sharma/flowforge/pkg/graphmodel"
)

// DefaultMaxParallel bounds concurrently-running node workers (SPEC_FULL.md §5).
const DefaultMaxParallel = 10

// settleDelay gives the last visited-flag write time to become observable
// before the ready queue is closed, per SPEC_FULL.md §4.4 step 7.
const settleDelay = 2 * time.Millisecond

// Status is the terminal state of a Run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Config tunes one Run call. Zero values fall back to the workflow defaults
// described in SPEC_FULL.md §3.1.
type Config struct {
	MaxParallel       int
	MaxRetries        int
	RetryDelaySeconds int
	TimeoutSeconds    int
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 3600
	}
	return c
}

// EventSink receives structured execution events as the runner progresses.
// pkg/logbuffer implements this to feed its dual-trigger flush policy
// without the scheduler importing it directly.
type EventSink interface {
	Event(level, message, nodeID string)
}

type noopSink struct{}

func (noopSink) Event(string, string, string) {}

// Result is the outcome of one workflow run: the envelope produced by every
// destination node (SPEC_FULL.md §4.4 step 9), plus the terminal status.
type Result struct {
	Status      Status
	NodeResults map[string]envelope.Envelope
	Err         error
}

// Run executes g to completion. registry supplies a fresh connector instance
// per attempt (SPEC_FULL.md §4.2 rationale). Cancellation of ctx by the
// caller, or expiry of the TimeoutSeconds deadline Run derives from it, is
// reflected in the result status.
func Run(ctx context.Context, g *graphmodel.Graph, registry *connector.Registry, cfg Config, sink EventSink) *Result {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = noopSink{}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	allResults := make(map[string]envelope.Envelope, len(g.Nodes))
	if len(g.Nodes) == 0 {
		return &Result{Status: StatusCompleted, NodeResults: allResults}
	}

	var mu sync.Mutex
	visited := make(map[string]bool, len(g.Nodes))
	enqueued := make(map[string]bool, len(g.Nodes))

	sem := make(chan struct{}, cfg.MaxParallel)
	queue := make(chan string, len(g.Nodes))
	errSink := make(chan error, 1)
	var wg sync.WaitGroup

	var pushReady func(nodeID string)

	pushReady = func(nodeID string) {
		n := g.NodeByID(nodeID)
		if n == nil {
			return
		}
		mu.Lock()
		if enqueued[nodeID] || visited[nodeID] {
			mu.Unlock()
			return
		}
		for _, up := range n.Inputs {
			if !visited[up] {
				mu.Unlock()
				return
			}
		}
		enqueued[nodeID] = true
		mu.Unlock()

		// queue is sized to len(g.Nodes) and each node id is sent at most
		// once (guarded by enqueued above), so this send never blocks.
		// wg.Add happens before the send so wg can never observe zero while
		// an enqueued-but-undispatched item is still waiting to be read.
		wg.Add(1)
		queue <- nodeID
	}

	worker := func(nodeID string) {
		defer wg.Done()
		defer func() { <-sem }()

		select {
		case <-ctx.Done():
			return
		default:
		}

		n := g.NodeByID(nodeID)

		var input map[string]interface{}
		if len(n.Inputs) > 0 {
			mu.Lock()
			envs := make([]envelope.Envelope, 0, len(n.Inputs))
			labels := make([]envelope.Label, 0, len(n.Inputs))
			for _, up := range n.Inputs {
				if e, ok := allResults[up]; ok {
					upNode := g.NodeByID(up)
					envs = append(envs, e)
					labels = append(labels, envelope.Label{NodeID: up, Name: upNode.Name})
				}
			}
			mu.Unlock()
			merged := envelope.Merge(envs, labels)
			input = merged.ToMap()
		}

		sink.Event("info", fmt.Sprintf("node %s started", nodeID), nodeID)
		env, err := executeNodeWithRetry(ctx, registry, n, input, cfg, sink)
		if err != nil {
			sink.Event("error", err.Error(), nodeID)
			select {
			case errSink <- err:
			default:
			}
			return
		}
		sink.Event("info", fmt.Sprintf("node %s completed", nodeID), nodeID)

		mu.Lock()
		visited[nodeID] = true
		allResults[nodeID] = env
		mu.Unlock()

		for _, down := range n.Outputs {
			pushReady(down)
		}
	}

	for _, n := range g.SourceNodes() {
		pushReady(n.ID)
	}

	// The dispatcher drains the queue unconditionally rather than also
	// selecting on ctx.Done(): a cancelled worker returns immediately (its
	// first action is a ctx.Done() check), so consuming its queued siblings
	// is cheap and avoids leaving wg counts that were incremented by
	// pushReady's unconditional send permanently unbalanced.
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		for nodeID := range queue {
			sem <- struct{}{}
			go worker(nodeID)
		}
	}()

	drainDone := make(chan struct{})
	go func() {
		wg.Wait()
		time.Sleep(settleDelay)
		close(queue)
		<-dispatcherDone
		close(drainDone)
	}()

	select {
	case <-ctx.Done():
	case <-drainDone:
	}

	result := &Result{NodeResults: make(map[string]envelope.Envelope)}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Status = StatusFailed
		result.Err = engineerrors.Timeout(cfg.TimeoutSeconds)
	case errors.Is(ctx.Err(), context.Canceled):
		result.Status = StatusCancelled
		result.Err = engineerrors.Cancellation()
	default:
		select {
		case err := <-errSink:
			result.Status = StatusFailed
			result.Err = err
		default:
			result.Status = StatusCompleted
		}
	}

	mu.Lock()
	for _, n := range g.DestinationNodes() {
		if e, ok := allResults[n.ID]; ok {
			result.NodeResults[n.ID] = e
		}
	}
	mu.Unlock()

	return result
}

// executeNodeWithRetry runs one node attempt-by-attempt per SPEC_FULL.md
// §4.4: a fresh connector instance per attempt, linear backoff between
// failures, and a ConfigurationError short-circuiting further retries.
func executeNodeWithRetry(ctx context.Context, registry *connector.Registry, n *graphmodel.Node, input map[string]interface{}, cfg Config, sink EventSink) (envelope.Envelope, error) {
	attempts := cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return envelope.Envelope{}, engineerrors.Cancellation()
		default:
		}

		conn, err := registry.Create(n.ConnectorID)
		if err != nil {
			return envelope.Envelope{}, err
		}
		if err := conn.Configure(n.Config); err != nil {
			return envelope.Envelope{}, err
		}

		if aware, ok := conn.(connector.SchemaAware); ok {
			var inputSchema *envelope.DataSchema
			if input != nil {
				if env, err := envelope.FromMap(input); err == nil {
					inputSchema = &env.Metadata.Schema
				}
			}
			if err := aware.ValidateInputSchema(inputSchema); err != nil {
				sink.Event("warn", engineerrors.SchemaConflict(n.ID, err.Error()).Error(), n.ID)
			}
		}

		start := time.Now()
		out, execErr := conn.Execute(ctx, input)
		elapsed := time.Since(start)

		if execErr != nil {
			var engErr *engineerrors.Error
			if errors.As(execErr, &engErr) && engErr.Code == engineerrors.CodeConfiguration {
				return envelope.Envelope{}, execErr
			}
			lastErr = execErr
			if attempt == attempts {
				break
			}
			sink.Event("warn", fmt.Sprintf("node %s attempt %d failed, retrying: %v", n.ID, attempt, execErr), n.ID)
			delay := time.Duration(cfg.RetryDelaySeconds*attempt) * time.Second
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return envelope.Envelope{}, engineerrors.Cancellation()
				}
			}
			continue
		}

		env, err := envelope.FromMap(out)
		if err != nil {
			return envelope.Envelope{}, engineerrors.Execution(n.ID, err)
		}
		env.Metadata.NodeID = n.ID
		env.Metadata.NodeType = n.ConnectorID
		// A source node's lineage includes its own id.
		if n.Category == connector.CategorySource {
			hasSelf := false
			for _, s := range env.Metadata.Sources {
				if s == n.ID {
					hasSelf = true
					break
				}
			}
			if !hasSelf {
				env.Metadata.Sources = append(env.Metadata.Sources, n.ID)
			}
		}
		env = env.WithExecutionTime(elapsed)
		if env.Metadata.Schema.IsEmpty() && len(env.Data) > 0 {
			env.Metadata.Schema = envelope.InferSchema(env.Data, n.ID)
		}
		return env, nil
	}

	return envelope.Envelope{}, engineerrors.Execution(n.ID, lastErr)
}
