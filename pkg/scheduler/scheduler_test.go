package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
	"github.com/shashank-sharma/flowforge/pkg/graphmodel"
)

// staticConnector always returns the same fixed records; used as a source.
type staticConnector struct {
	id      string
	records []envelope.Record
}

func (c *staticConnector) ID() string                                { return c.id }
func (c *staticConnector) Name() string                              { return c.id }
func (c *staticConnector) Category() connector.Category              { return connector.CategorySource }
func (c *staticConnector) ConfigSchema() map[string]interface{}      { return nil }
func (c *staticConnector) Configure(connector.Config) error          { return nil }
func (c *staticConnector) Execute(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	env := envelope.New(c.records, envelope.InferSchema(c.records, c.id), c.id, "static_source", nil)
	return env.ToMap(), nil
}

// passthroughConnector forwards its aggregated input unchanged.
type passthroughConnector struct{ category connector.Category }

func (c *passthroughConnector) ID() string                           { return "passthrough" }
func (c *passthroughConnector) Name() string                         { return "passthrough" }
func (c *passthroughConnector) Category() connector.Category         { return c.category }
func (c *passthroughConnector) ConfigSchema() map[string]interface{} { return nil }
func (c *passthroughConnector) Configure(connector.Config) error     { return nil }
func (c *passthroughConnector) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if input == nil {
		return envelope.Envelope{}.ToMap(), nil
	}
	return input, nil
}

// fieldAddingConnector forwards its input with one extra field stamped onto
// every record, used to give two parallel branches a colliding field name.
type fieldAddingConnector struct {
	field string
	value interface{}
}

func (c *fieldAddingConnector) ID() string                           { return "field_adder" }
func (c *fieldAddingConnector) Name() string                         { return "field_adder" }
func (c *fieldAddingConnector) Category() connector.Category         { return connector.CategoryProcessor }
func (c *fieldAddingConnector) ConfigSchema() map[string]interface{} { return nil }
func (c *fieldAddingConnector) Configure(connector.Config) error     { return nil }
func (c *fieldAddingConnector) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	env, err := envelope.FromMap(input)
	if err != nil {
		return nil, err
	}
	out := make([]envelope.Record, len(env.Data))
	for i, rec := range env.Data {
		cp := make(envelope.Record, len(rec)+1)
		for k, v := range rec {
			cp[k] = v
		}
		cp[c.field] = c.value
		out[i] = cp
	}
	result := envelope.New(out, envelope.InferSchema(out, c.ID()), c.ID(), "field_adder", env.Metadata.Sources)
	return result.ToMap(), nil
}

// flakyConnector fails the first N attempts (shared across fresh instances
// via the pointer, mirroring how executeNodeWithRetry creates a new instance
// per attempt while the underlying resource the connector wraps persists).
type flakyConnector struct {
	failUntil int32
	attempts  *int32
}

func (c *flakyConnector) ID() string                           { return "flaky" }
func (c *flakyConnector) Name() string                         { return "flaky" }
func (c *flakyConnector) Category() connector.Category         { return connector.CategoryProcessor }
func (c *flakyConnector) ConfigSchema() map[string]interface{} { return nil }
func (c *flakyConnector) Configure(connector.Config) error     { return nil }
func (c *flakyConnector) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	n := atomic.AddInt32(c.attempts, 1)
	if n <= c.failUntil {
		return nil, engineerrors.Execution("flaky", nil)
	}
	return input, nil
}

// configErrorConnector always fails Configure; must never be retried.
type configErrorConnector struct{ calls *int32 }

func (c *configErrorConnector) ID() string                           { return "bad_config" }
func (c *configErrorConnector) Name() string                         { return "bad_config" }
func (c *configErrorConnector) Category() connector.Category         { return connector.CategoryProcessor }
func (c *configErrorConnector) ConfigSchema() map[string]interface{} { return nil }
func (c *configErrorConnector) Configure(connector.Config) error {
	atomic.AddInt32(c.calls, 1)
	return engineerrors.Configuration("bad_config", "missing required field")
}
func (c *configErrorConnector) Execute(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}

// slowConnector blocks until ctx is done or a fixed delay elapses, whichever
// is first, so it can be used to exercise timeout handling without a real sleep.
type slowConnector struct{ delay time.Duration }

func (c *slowConnector) ID() string                           { return "slow" }
func (c *slowConnector) Name() string                         { return "slow" }
func (c *slowConnector) Category() connector.Category         { return connector.CategoryDestination }
func (c *slowConnector) ConfigSchema() map[string]interface{} { return nil }
func (c *slowConnector) Configure(connector.Config) error     { return nil }
func (c *slowConnector) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	select {
	case <-time.After(c.delay):
		return input, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func buildLinearGraph(t *testing.T) (*graphmodel.Graph, *connector.Registry) {
	t.Helper()
	reg := connector.NewRegistry()
	reg.Register("static_source", func() connector.Connector {
		return &staticConnector{id: "src", records: []envelope.Record{{"v": 1.0}, {"v": 2.0}}}
	})
	reg.Register("passthrough", func() connector.Connector {
		return &passthroughConnector{category: connector.CategoryProcessor}
	})
	reg.Register("memory_destination", func() connector.Connector {
		return &passthroughConnector{category: connector.CategoryDestination}
	})

	g, err := graphmodel.Build(
		[]graphmodel.NodeInput{
			{ID: "src", Category: connector.CategorySource, ConnectorID: "static_source"},
			{ID: "proc", Category: connector.CategoryProcessor, ConnectorID: "passthrough"},
			{ID: "dst", Category: connector.CategoryDestination, ConnectorID: "memory_destination"},
		},
		[]graphmodel.EdgeInput{
			{ID: "e1", SourceNodeID: "src", TargetNodeID: "proc"},
			{ID: "e2", SourceNodeID: "proc", TargetNodeID: "dst"},
		},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g, reg
}

func TestRunLinearChainCompletes(t *testing.T) {
	g, reg := buildLinearGraph(t)

	result := Run(context.Background(), g, reg, Config{}, nil)
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (err=%v)", result.Status, result.Err)
	}
	env, ok := result.NodeResults["dst"]
	if !ok {
		t.Fatal("expected a result for the destination node")
	}
	if len(env.Data) != 2 {
		t.Errorf("expected 2 records to reach the destination, got %d", len(env.Data))
	}
}

func TestRunDiamondMergePrefixesCollidingFields(t *testing.T) {
	reg := connector.NewRegistry()
	reg.Register("static_source", func() connector.Connector {
		return &staticConnector{id: "src", records: []envelope.Record{{"v": 1.0}}}
	})
	reg.Register("left", func() connector.Connector {
		return &fieldAddingConnector{field: "tag", value: "left"}
	})
	reg.Register("right", func() connector.Connector {
		return &fieldAddingConnector{field: "tag", value: "right"}
	})
	reg.Register("memory_destination", func() connector.Connector {
		return &passthroughConnector{category: connector.CategoryDestination}
	})

	g, err := graphmodel.Build(
		[]graphmodel.NodeInput{
			{ID: "src", Name: "Source", Category: connector.CategorySource, ConnectorID: "static_source"},
			{ID: "left", Name: "Left Branch", Category: connector.CategoryProcessor, ConnectorID: "left"},
			{ID: "right", Name: "Right Branch", Category: connector.CategoryProcessor, ConnectorID: "right"},
			{ID: "dst", Category: connector.CategoryDestination, ConnectorID: "memory_destination"},
		},
		[]graphmodel.EdgeInput{
			{ID: "e1", SourceNodeID: "src", TargetNodeID: "left"},
			{ID: "e2", SourceNodeID: "src", TargetNodeID: "right"},
			{ID: "e3", SourceNodeID: "left", TargetNodeID: "dst"},
			{ID: "e4", SourceNodeID: "right", TargetNodeID: "dst"},
		},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	result := Run(context.Background(), g, reg, Config{}, nil)
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (err=%v)", result.Status, result.Err)
	}

	env := result.NodeResults["dst"]
	if len(env.Data) != 2 {
		t.Fatalf("expected 2 merged records (one per branch), got %d", len(env.Data))
	}
	foundLeft, foundRight := false, false
	for _, rec := range env.Data {
		for k, v := range rec {
			if k != "tag" && v == "left" {
				foundLeft = true
			}
			if k != "tag" && v == "right" {
				foundRight = true
			}
		}
	}
	if !foundLeft || !foundRight {
		t.Errorf("expected both branches' colliding 'tag' field to survive under prefixed names, records=%v", env.Data)
	}
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	reg := connector.NewRegistry()
	reg.Register("static_source", func() connector.Connector {
		return &staticConnector{id: "src", records: []envelope.Record{{"v": 1.0}}}
	})
	var attempts int32
	reg.Register("flaky", func() connector.Connector {
		return &flakyConnector{failUntil: 2, attempts: &attempts}
	})
	reg.Register("memory_destination", func() connector.Connector {
		return &passthroughConnector{category: connector.CategoryDestination}
	})

	g, err := graphmodel.Build(
		[]graphmodel.NodeInput{
			{ID: "src", Category: connector.CategorySource, ConnectorID: "static_source"},
			{ID: "proc", Category: connector.CategoryProcessor, ConnectorID: "flaky"},
			{ID: "dst", Category: connector.CategoryDestination, ConnectorID: "memory_destination"},
		},
		[]graphmodel.EdgeInput{
			{ID: "e1", SourceNodeID: "src", TargetNodeID: "proc"},
			{ID: "e2", SourceNodeID: "proc", TargetNodeID: "dst"},
		},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	result := Run(context.Background(), g, reg, Config{MaxRetries: 3}, nil)
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed after retries, got %s (err=%v)", result.Status, result.Err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected exactly 3 attempts (2 failures + 1 success), got %d", got)
	}
}

func TestRunConfigurationErrorSkipsRetry(t *testing.T) {
	reg := connector.NewRegistry()
	reg.Register("static_source", func() connector.Connector {
		return &staticConnector{id: "src", records: []envelope.Record{{"v": 1.0}}}
	})
	var calls int32
	reg.Register("bad_config", func() connector.Connector {
		return &configErrorConnector{calls: &calls}
	})
	reg.Register("memory_destination", func() connector.Connector {
		return &passthroughConnector{category: connector.CategoryDestination}
	})

	g, err := graphmodel.Build(
		[]graphmodel.NodeInput{
			{ID: "src", Category: connector.CategorySource, ConnectorID: "static_source"},
			{ID: "proc", Category: connector.CategoryProcessor, ConnectorID: "bad_config"},
			{ID: "dst", Category: connector.CategoryDestination, ConnectorID: "memory_destination"},
		},
		[]graphmodel.EdgeInput{
			{ID: "e1", SourceNodeID: "src", TargetNodeID: "proc"},
			{ID: "e2", SourceNodeID: "proc", TargetNodeID: "dst"},
		},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	result := Run(context.Background(), g, reg, Config{MaxRetries: 5}, nil)
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 Configure call (no retry on ConfigurationError), got %d", got)
	}
}

func TestRunTimeoutReportsTimeoutError(t *testing.T) {
	reg := connector.NewRegistry()
	reg.Register("static_source", func() connector.Connector {
		return &staticConnector{id: "src", records: []envelope.Record{{"v": 1.0}}}
	})
	reg.Register("slow", func() connector.Connector {
		return &slowConnector{delay: 2 * time.Second}
	})

	g, err := graphmodel.Build(
		[]graphmodel.NodeInput{
			{ID: "src", Category: connector.CategorySource, ConnectorID: "static_source"},
			{ID: "dst", Category: connector.CategoryDestination, ConnectorID: "slow"},
		},
		[]graphmodel.EdgeInput{{ID: "e1", SourceNodeID: "src", TargetNodeID: "dst"}},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	result := Run(context.Background(), g, reg, Config{TimeoutSeconds: 1}, nil)
	if result.Status != StatusFailed {
		t.Fatalf("expected failed on timeout, got %s", result.Status)
	}
	if engErr, ok := engineerrors.As(result.Err); !ok || engErr.Code != engineerrors.CodeTimeout {
		t.Errorf("expected a TimeoutError, got %v", result.Err)
	}
}

func TestRunExternalCancellationReportsCancelled(t *testing.T) {
	reg := connector.NewRegistry()
	reg.Register("static_source", func() connector.Connector {
		return &staticConnector{id: "src", records: []envelope.Record{{"v": 1.0}}}
	})
	reg.Register("slow", func() connector.Connector {
		return &slowConnector{delay: time.Second}
	})

	g, err := graphmodel.Build(
		[]graphmodel.NodeInput{
			{ID: "src", Category: connector.CategorySource, ConnectorID: "static_source"},
			{ID: "dst", Category: connector.CategoryDestination, ConnectorID: "slow"},
		},
		[]graphmodel.EdgeInput{{ID: "e1", SourceNodeID: "src", TargetNodeID: "dst"}},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := Run(ctx, g, reg, Config{TimeoutSeconds: 30}, nil)
	if result.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s (err=%v)", result.Status, result.Err)
	}
}

func TestRunEmptyGraphCompletesTrivially(t *testing.T) {
	g := &graphmodel.Graph{Nodes: map[string]*graphmodel.Node{}}
	result := Run(context.Background(), g, connector.NewRegistry(), Config{}, nil)
	if result.Status != StatusCompleted {
		t.Errorf("expected empty graph to complete trivially, got %s", result.Status)
	}
}
