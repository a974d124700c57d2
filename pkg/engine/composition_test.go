package engine

import (
	"testing"
	"time"

	"github.com/shashank-sharma/flowforge/connectors"
	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/store"
)

func newTestEngine(t *testing.T) (*WorkflowEngine, store.Store) {
	t.Helper()
	registry := connector.NewRegistry()
	connectors.Register(registry)

	st := store.NewInMemoryStore()
	eng, err := NewWorkflowEngine(st, registry, TestingConfig())
	if err != nil {
		t.Fatalf("NewWorkflowEngine failed: %v", err)
	}
	return eng, st
}

// seedLinearWorkflow persists static_source -> identity_processor ->
// memory_destination and returns the workflow id plus each node's id.
func seedLinearWorkflow(t *testing.T, st store.Store) (workflowID, sourceID, procID, destID string) {
	t.Helper()

	wf := &store.Workflow{Name: "linear"}
	if err := st.Save(wf); err != nil {
		t.Fatalf("saving workflow: %v", err)
	}

	source := &store.WorkflowNode{
		WorkflowID:  wf.ID,
		Name:        "source",
		Category:    string(connector.CategorySource),
		ConnectorID: connectors.StaticSourceID,
		Config: map[string]interface{}{
			"records": []interface{}{
				map[string]interface{}{"amount": 10.0},
				map[string]interface{}{"amount": 20.0},
			},
		},
	}
	proc := &store.WorkflowNode{
		WorkflowID:  wf.ID,
		Name:        "identity",
		Category:    string(connector.CategoryProcessor),
		ConnectorID: connectors.IdentityProcessorID,
		Config:      map[string]interface{}{},
	}
	dest := &store.WorkflowNode{
		WorkflowID:  wf.ID,
		Name:        "sink",
		Category:    string(connector.CategoryDestination),
		ConnectorID: connectors.MemoryDestinationID,
		Config:      map[string]interface{}{},
	}
	for _, n := range []*store.WorkflowNode{source, proc, dest} {
		if err := st.Save(n); err != nil {
			t.Fatalf("saving node %s: %v", n.Name, err)
		}
	}

	edges := []*store.WorkflowConnection{
		{WorkflowID: wf.ID, SourceNodeID: source.ID, TargetNodeID: proc.ID},
		{WorkflowID: wf.ID, SourceNodeID: proc.ID, TargetNodeID: dest.ID},
	}
	for _, e := range edges {
		if err := st.Save(e); err != nil {
			t.Fatalf("saving edge: %v", err)
		}
	}

	return wf.ID, source.ID, proc.ID, dest.ID
}

func TestValidateWorkflowAcceptsWellFormedLinearGraph(t *testing.T) {
	eng, st := newTestEngine(t)
	workflowID, _, _, _ := seedLinearWorkflow(t, st)

	result, err := eng.ValidateWorkflow(workflowID)
	if err != nil {
		t.Fatalf("ValidateWorkflow failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected a valid graph, got errors: %v", result.Errors)
	}
}

func TestExecuteWorkflowRunsToCompletionAndRecordsResults(t *testing.T) {
	eng, st := newTestEngine(t)
	workflowID, _, _, destID := seedLinearWorkflow(t, st)

	exec, err := eng.ExecuteWorkflow(workflowID)
	if err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}
	if exec.Status != "running" {
		t.Fatalf("expected initial status running, got %q", exec.Status)
	}

	var snapshot *ExecutionSnapshot
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, err = eng.GetExecutionStatus(exec.ID)
		if err != nil {
			t.Fatalf("GetExecutionStatus failed: %v", err)
		}
		if snapshot.Status != "running" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if snapshot.Status != "completed" {
		t.Fatalf("expected execution to complete, got status %q (error %q)", snapshot.Status, snapshot.ErrorMessage)
	}
	if _, ok := snapshot.Results[destID]; !ok {
		t.Fatalf("expected a result entry for destination node %s, got keys %v", destID, snapshot.Results)
	}
}

func TestGetNodeOutputSchemaDerivesAndCachesSchema(t *testing.T) {
	eng, st := newTestEngine(t)
	workflowID, _, procID, _ := seedLinearWorkflow(t, st)

	schema, err := eng.GetNodeOutputSchema(workflowID, procID)
	if err != nil {
		t.Fatalf("GetNodeOutputSchema failed: %v", err)
	}
	if schema.IsEmpty() {
		t.Fatal("expected a non-empty schema derived from the source's inferred fields")
	}
	if _, ok := schema.FieldByName("amount"); !ok {
		t.Fatalf("expected an 'amount' field to propagate through identity_processor, got %+v", schema)
	}

	// Second call should hit the cache and return an identical schema.
	again, err := eng.GetNodeOutputSchema(workflowID, procID)
	if err != nil {
		t.Fatalf("GetNodeOutputSchema (cached) failed: %v", err)
	}
	if len(again.Fields) != len(schema.Fields) {
		t.Fatalf("expected cached schema to match first derivation, got %+v vs %+v", again, schema)
	}
}

func TestGetNodeSampleDataExecutesUpstreamChain(t *testing.T) {
	eng, st := newTestEngine(t)
	workflowID, _, procID, _ := seedLinearWorkflow(t, st)

	data, err := eng.GetNodeSampleData(workflowID, procID, 1)
	if err != nil {
		t.Fatalf("GetNodeSampleData failed: %v", err)
	}
	records, _ := data["data"].([]interface{})
	if len(records) != 1 {
		t.Fatalf("expected sample data truncated to limit 1, got %d records", len(records))
	}
}

func TestGetWorkflowSchemaReportsEveryNode(t *testing.T) {
	eng, st := newTestEngine(t)
	workflowID, sourceID, procID, destID := seedLinearWorkflow(t, st)

	schemas, err := eng.GetWorkflowSchema(workflowID)
	if err != nil {
		t.Fatalf("GetWorkflowSchema failed: %v", err)
	}
	for _, id := range []string{sourceID, procID, destID} {
		entry, ok := schemas[id]
		if !ok {
			t.Fatalf("expected an entry for node %s", id)
		}
		if entry.Error != "" {
			t.Fatalf("node %s: unexpected schema derivation error: %s", id, entry.Error)
		}
	}
}

func TestSaveWorkflowGraphRemapsTemporaryIDsAndInvalidatesCache(t *testing.T) {
	eng, st := newTestEngine(t)
	wf := &store.Workflow{Name: "built-from-scratch"}
	if err := st.Save(wf); err != nil {
		t.Fatalf("saving workflow: %v", err)
	}

	nodes := []NodeSpec{
		{
			ID:          "node_source",
			Name:        "source",
			Category:    connector.CategorySource,
			ConnectorID: connectors.StaticSourceID,
			Config: map[string]interface{}{
				"records": []interface{}{map[string]interface{}{"x": 1.0}},
			},
		},
		{
			ID:          "node_dest",
			Name:        "sink",
			Category:    connector.CategoryDestination,
			ConnectorID: connectors.MemoryDestinationID,
			Config:      map[string]interface{}{},
		},
	}
	edges := []EdgeSpec{
		{ID: "edge_main", SourceNodeID: "node_source", TargetNodeID: "node_dest"},
	}

	result, savedNodes, savedEdges, err := eng.SaveWorkflowGraph(wf.ID, nodes, edges)
	if err != nil {
		t.Fatalf("SaveWorkflowGraph failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected the saved graph to validate, got errors: %v", result.Errors)
	}
	if len(savedNodes) != 2 || len(savedEdges) != 1 {
		t.Fatalf("expected 2 saved nodes and 1 saved edge, got %d/%d", len(savedNodes), len(savedEdges))
	}

	for _, e := range savedEdges {
		if e.SourceNodeID == "node_source" || e.TargetNodeID == "node_dest" {
			t.Fatalf("expected temporary node ids to be remapped to durable ids, got edge %+v", e)
		}
	}
}

func TestWorkflowEngineReadyRequiresRegisteredConnectors(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Ready(); err != nil {
		t.Fatalf("expected a fully wired engine to be ready, got: %v", err)
	}

	empty, err := NewWorkflowEngine(store.NewInMemoryStore(), connector.NewRegistry(), TestingConfig())
	if err != nil {
		t.Fatalf("NewWorkflowEngine failed: %v", err)
	}
	if err := empty.Ready(); err == nil {
		t.Fatal("expected Ready to fail for an engine with no connectors registered")
	}
}

func TestWorkflowEngineSchemaCacheStatsTracksHitsAndMisses(t *testing.T) {
	eng, st := newTestEngine(t)
	wf, sourceID, _, _ := seedLinearWorkflow(t, st)

	if _, err := eng.GetNodeOutputSchema(wf, sourceID); err != nil {
		t.Fatalf("GetNodeOutputSchema (miss) failed: %v", err)
	}
	if _, err := eng.GetNodeOutputSchema(wf, sourceID); err != nil {
		t.Fatalf("GetNodeOutputSchema (hit) failed: %v", err)
	}

	stats := eng.SchemaCacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats)
	}
}
