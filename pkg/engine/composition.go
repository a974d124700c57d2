// Package engine is the composition root wiring connector, graphmodel,
// scheduler, schemacache, logbuffer and store into the external API
// SPEC_FULL.md §6 names: ExecuteWorkflow, GetExecutionStatus,
// ValidateWorkflow, SaveWorkflowGraph, GetNodeOutputSchema,
// GetNodeSampleData, GetWorkflowSchema.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
	"github.com/shashank-sharma/flowforge/pkg/graphmodel"
	"github.com/shashank-sharma/flowforge/pkg/logbuffer"
	"github.com/shashank-sharma/flowforge/pkg/scheduler"
	"github.com/shashank-sharma/flowforge/pkg/schemacache"
	"github.com/shashank-sharma/flowforge/pkg/store"
	"github.com/shashank-sharma/flowforge/pkg/telemetry"
)

// WorkflowEngine is the composition root this package exposes externally.
// WorkflowEngine owns no per-workflow mutable state of its own: every call
// reloads the graph from Store fresh (SPEC_FULL.md §3 "Graph: built fresh
// at execution start and at schema introspection calls; never shared
// across executions").
type WorkflowEngine struct {
	store       store.Store
	registry    *connector.Registry
	schemaCache *schemacache.Cache
	config      Config
	telemetry   *telemetry.Provider
}

// NewWorkflowEngine wires a Store and a populated connector Registry into a
// ready-to-use WorkflowEngine. cfg.SchemaCacheMax/SchemaCacheTTL size the schema
// cache; pass DefaultConfig() for the values SPEC_FULL.md §6 names.
func NewWorkflowEngine(st store.Store, registry *connector.Registry, cfg Config) (*WorkflowEngine, error) {
	cache, err := schemacache.New(cfg.SchemaCacheMax, cfg.SchemaCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("constructing schema cache: %w", err)
	}
	return &WorkflowEngine{store: st, registry: registry, schemaCache: cache, config: cfg}, nil
}

// WithTelemetry attaches a telemetry.Provider so future ExecuteWorkflow runs
// and schema cache lookups report spans and metrics. Passing nil (the
// zero value a WorkflowEngine starts with) disables telemetry entirely.
func (e *WorkflowEngine) WithTelemetry(p *telemetry.Provider) *WorkflowEngine {
	e.telemetry = p
	return e
}

// Ready reports whether the engine has the components it needs to accept
// ExecuteWorkflow calls: at least one connector registered, and a schema
// cache to back GetNodeOutputSchema. A composition wired via
// NewWorkflowEngine always has a non-nil schema cache, so an empty registry
// is the only realistic failure — e.g. a deployment whose connector
// registration step didn't run.
func (e *WorkflowEngine) Ready() error {
	if e.schemaCache == nil {
		return fmt.Errorf("schema cache not initialized")
	}
	if len(e.registry.List()) == 0 {
		return fmt.Errorf("no connectors registered")
	}
	return nil
}

// SchemaCacheStats exposes the schema cache's hit/miss/eviction counters,
// for readiness reporting on cache thrashing.
func (e *WorkflowEngine) SchemaCacheStats() schemacache.Stats {
	return e.schemaCache.Stats()
}

// NodeSpec is the caller-supplied shape for one node in SaveWorkflowGraph.
// ID may be a temporary client-generated id (SPEC_FULL.md §4.3).
type NodeSpec struct {
	ID          string
	Name        string
	Category    connector.Category
	ConnectorID string
	Config      map[string]interface{}
	Position    interface{}
}

// EdgeSpec is the caller-supplied shape for one edge in SaveWorkflowGraph.
// SourceNodeID/TargetNodeID may reference a NodeSpec's temporary id.
type EdgeSpec struct {
	ID           string
	SourceNodeID string
	TargetNodeID string
}

// NodeSchemaResult is one entry of GetWorkflowSchema's per-node map
// (SPEC_FULL.md §6): either OutputSchema or Error is set, never both.
type NodeSchemaResult struct {
	NodeName     string
	ConnectorID  string
	OutputSchema *envelope.DataSchema
	Error        string
}

// ExecutionSnapshot is GetExecutionStatus's return shape, with logs/results
// parsed out of their serialized store form (SPEC_FULL.md §6).
type ExecutionSnapshot struct {
	ID           string
	WorkflowID   string
	Status       string
	StartTime    time.Time
	EndTime      time.Time
	DurationMs   int64
	ErrorMessage string
	Logs         []logbuffer.Event
	Results      map[string]interface{}
}

// isTempID recognises the client-generated placeholder ids SaveWorkflowGraph
// must remap to durable ids before persisting (SPEC_FULL.md §4.3).
func isTempID(id string) bool {
	return strings.HasPrefix(id, "node_") || strings.HasPrefix(id, "edge_")
}

func (e *WorkflowEngine) loadWorkflow(workflowID string) (*store.Workflow, error) {
	rec, ok := e.store.FindByID(store.KindWorkflow, workflowID)
	if !ok {
		return nil, fmt.Errorf("workflow %s not found", workflowID)
	}
	return rec.(*store.Workflow), nil
}

// buildGraph compiles wf's currently persisted nodes/edges into a fresh
// Graph. A node that omits ConnectorID falls back to wf.NodeTypeDefaults
// keyed by the node's Category — the closest equivalent Store's WorkflowNode
// shape offers to the legacy bare-"type" alias described in SPEC_FULL.md
// §3.1, since WorkflowNode carries no separate legacy type field.
func (e *WorkflowEngine) buildGraph(workflowID string, wf *store.Workflow) (*graphmodel.Graph, error) {
	nodeRecords := e.store.FindByFilter(store.KindWorkflowNode, map[string]interface{}{"WorkflowID": workflowID})
	edgeRecords := e.store.FindByFilter(store.KindWorkflowConnection, map[string]interface{}{"WorkflowID": workflowID})

	nodeInputs := make([]graphmodel.NodeInput, 0, len(nodeRecords))
	for _, r := range nodeRecords {
		wn := r.(*store.WorkflowNode)
		connectorID := wn.ConnectorID
		if connectorID == "" {
			connectorID = wf.NodeTypeDefaults[wn.Category]
		}
		nodeInputs = append(nodeInputs, graphmodel.NodeInput{
			ID:          wn.ID,
			Name:        wn.Name,
			Category:    connector.Category(wn.Category),
			ConnectorID: connectorID,
			Config:      wn.Config,
			Position:    wn.Position,
		})
	}

	edgeInputs := make([]graphmodel.EdgeInput, 0, len(edgeRecords))
	for _, r := range edgeRecords {
		we := r.(*store.WorkflowConnection)
		edgeInputs = append(edgeInputs, graphmodel.EdgeInput{
			ID:           we.ID,
			SourceNodeID: we.SourceNodeID,
			TargetNodeID: we.TargetNodeID,
		})
	}

	return graphmodel.Build(nodeInputs, edgeInputs)
}

func (e *WorkflowEngine) connectorLookup(connectorID string) (connector.Category, map[string]interface{}, bool) {
	d, ok := e.registry.Get(connectorID)
	if !ok {
		return "", nil, false
	}
	return d.Category, d.ConfigSchema, true
}

// ValidateWorkflow compiles workflowID's current graph and runs the
// structural checks in graphmodel.Validate (SPEC_FULL.md §6). A graph that
// fails to even build (e.g. an edge referencing a missing node) is reported
// as a single validation error rather than surfaced as a Go error, since
// that's still "a reason this workflow can't run", not an infrastructure fault.
func (e *WorkflowEngine) ValidateWorkflow(workflowID string) (graphmodel.ValidationResult, error) {
	wf, err := e.loadWorkflow(workflowID)
	if err != nil {
		return graphmodel.ValidationResult{}, err
	}
	g, err := e.buildGraph(workflowID, wf)
	if err != nil {
		return graphmodel.ValidationResult{Valid: false, Errors: []string{err.Error()}}, nil
	}
	return graphmodel.Validate(g, e.connectorLookup), nil
}

// ExecuteWorkflow creates a running ExecutionRecord and returns it
// immediately, running the graph to completion on a detached goroutine
// (SPEC_FULL.md §4.4 entry).
func (e *WorkflowEngine) ExecuteWorkflow(workflowID string) (*store.WorkflowExecution, error) {
	wf, err := e.loadWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	exec := &store.WorkflowExecution{
		WorkflowID: workflowID,
		Status:     "running",
		StartTime:  time.Now(),
	}
	if err := e.store.Save(exec); err != nil {
		return nil, fmt.Errorf("creating execution record: %w", err)
	}

	timeout := e.config.DefaultWorkflowTimeout
	if wf.TimeoutSeconds > 0 {
		timeout = time.Duration(wf.TimeoutSeconds) * time.Second
	}

	go e.runExecution(exec.ID, workflowID, wf, timeout)

	return exec, nil
}

func (e *WorkflowEngine) runExecution(executionID, workflowID string, wf *store.Workflow, timeout time.Duration) {
	g, err := e.buildGraph(workflowID, wf)
	if err != nil {
		e.failExecution(executionID, err)
		return
	}

	if validation := graphmodel.Validate(g, e.connectorLookup); !validation.Valid {
		e.failExecution(executionID, fmt.Errorf("workflow validation failed: %s", strings.Join(validation.Errors, "; ")))
		return
	}

	for _, n := range g.Nodes {
		d, ok := e.registry.Get(n.ConnectorID)
		if !ok {
			e.failExecution(executionID, engineerrors.Configuration(n.ID, fmt.Sprintf("unknown connector id: %s", n.ConnectorID)))
			return
		}
		if err := connector.ValidateConfig(n.ID, d.ConfigSchema, n.Config); err != nil {
			e.failExecution(executionID, err)
			return
		}
	}

	var flushMu sync.Mutex
	buf := logbuffer.New(executionID, workflowID, func(events []logbuffer.Event, terminal *logbuffer.TerminalInfo) {
		e.persistLogFlush(executionID, &flushMu, events, terminal)
	}, nil)

	var sink scheduler.EventSink = buf
	if e.telemetry != nil {
		sink = fanoutSink{buf: buf, tel: telemetry.NewSchedulerEventSink(e.telemetry, g)}
	}

	schedCfg := scheduler.Config{
		MaxParallel:       e.config.MaxParallel,
		MaxRetries:        wf.MaxRetries,
		RetryDelaySeconds: wf.RetryDelaySeconds,
		TimeoutSeconds:    int(timeout / time.Second),
	}

	start := time.Now()
	result := scheduler.Run(context.Background(), g, e.registry, schedCfg, sink)
	duration := time.Since(start)

	results := make(map[string]interface{}, len(result.NodeResults))
	for id, env := range result.NodeResults {
		results[id] = env.ToMap()
	}
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	if e.telemetry != nil {
		e.telemetry.RecordWorkflowExecution(context.Background(), workflowID, duration, result.Status == scheduler.StatusCompleted, len(result.NodeResults))
	}

	buf.ForceFlush(logbuffer.TerminalInfo{
		Status:       string(result.Status),
		EndTime:      start.Add(duration),
		DurationMs:   duration.Milliseconds(),
		ErrorMessage: errMsg,
		Results:      results,
	})
}

// fanoutSink routes one scheduler event to both the execution's log buffer
// and its telemetry sink, so runExecution doesn't have to choose between
// persisted logs and spans/metrics.
type fanoutSink struct {
	buf *logbuffer.Buffer
	tel *telemetry.SchedulerEventSink
}

func (f fanoutSink) Event(level, message, nodeID string) {
	f.buf.Event(level, message, nodeID)
	f.tel.Event(level, message, nodeID)
}

// failExecution records a terminal failure for executions that never reached
// the scheduler (graph build/validation/config errors), since those have no
// logbuffer.Buffer to route a ForceFlush through.
func (e *WorkflowEngine) failExecution(executionID string, cause error) {
	rec, ok := e.store.FindByID(store.KindWorkflowExecution, executionID)
	if !ok {
		return
	}
	exec := rec.(*store.WorkflowExecution)
	exec.Status = "failed"
	exec.EndTime = time.Now()
	exec.DurationMs = exec.EndTime.Sub(exec.StartTime).Milliseconds()
	exec.ErrorMessage = cause.Error()
	e.store.Save(exec)
}

// persistLogFlush applies one logbuffer flush to the execution record,
// appending to any previously flushed log events. mu serialises concurrent
// flushes for the same execution, since logbuffer invokes onFlush outside
// its own lock.
func (e *WorkflowEngine) persistLogFlush(executionID string, mu *sync.Mutex, events []logbuffer.Event, terminal *logbuffer.TerminalInfo) {
	mu.Lock()
	defer mu.Unlock()

	rec, ok := e.store.FindByID(store.KindWorkflowExecution, executionID)
	if !ok {
		return
	}
	exec := rec.(*store.WorkflowExecution)

	var existing []logbuffer.Event
	if exec.Logs != "" {
		_ = json.Unmarshal([]byte(exec.Logs), &existing)
	}
	existing = append(existing, events...)
	if b, err := json.Marshal(existing); err == nil {
		exec.Logs = string(b)
	}

	if terminal != nil {
		exec.Status = terminal.Status
		exec.EndTime = terminal.EndTime
		exec.DurationMs = terminal.DurationMs
		exec.ErrorMessage = terminal.ErrorMessage
		if terminal.Results != nil {
			if b, err := json.Marshal(terminal.Results); err == nil {
				exec.Results = string(b)
			}
		}
	}

	e.store.Save(exec)
}

// GetExecutionStatus returns executionID's current snapshot with logs/results
// parsed out of their serialized store form (SPEC_FULL.md §6).
func (e *WorkflowEngine) GetExecutionStatus(executionID string) (*ExecutionSnapshot, error) {
	rec, ok := e.store.FindByID(store.KindWorkflowExecution, executionID)
	if !ok {
		return nil, fmt.Errorf("execution %s not found", executionID)
	}
	exec := rec.(*store.WorkflowExecution)

	snapshot := &ExecutionSnapshot{
		ID:           exec.ID,
		WorkflowID:   exec.WorkflowID,
		Status:       exec.Status,
		StartTime:    exec.StartTime,
		EndTime:      exec.EndTime,
		DurationMs:   exec.DurationMs,
		ErrorMessage: exec.ErrorMessage,
	}
	if exec.Logs != "" {
		if err := json.Unmarshal([]byte(exec.Logs), &snapshot.Logs); err != nil {
			return nil, fmt.Errorf("parsing execution logs: %w", err)
		}
	}
	if exec.Results != "" {
		if err := json.Unmarshal([]byte(exec.Results), &snapshot.Results); err != nil {
			return nil, fmt.Errorf("parsing execution results: %w", err)
		}
	}
	return snapshot, nil
}

// SaveWorkflowGraph performs the diff upsert described in SPEC_FULL.md §6:
// existing nodes/edges absent from the new set are deleted, existing ones
// are updated in place by id, new ones (recognised by a temporary id) are
// created and their durable id is substituted into any edge endpoint that
// referenced the temporary id. Always invalidates the workflow's schema
// cache entries, even when the resulting graph fails validation.
func (e *WorkflowEngine) SaveWorkflowGraph(workflowID string, nodes []NodeSpec, edges []EdgeSpec) (graphmodel.ValidationResult, []store.WorkflowNode, []store.WorkflowConnection, error) {
	if _, err := e.loadWorkflow(workflowID); err != nil {
		return graphmodel.ValidationResult{}, nil, nil, err
	}

	existingNodes := e.store.FindByFilter(store.KindWorkflowNode, map[string]interface{}{"WorkflowID": workflowID})
	existingNodeByID := make(map[string]*store.WorkflowNode, len(existingNodes))
	for _, r := range existingNodes {
		wn := r.(*store.WorkflowNode)
		existingNodeByID[wn.ID] = wn
	}

	idRemap := make(map[string]string, len(nodes))
	keepNodeIDs := make(map[string]bool, len(nodes))
	savedNodes := make([]store.WorkflowNode, 0, len(nodes))

	for _, spec := range nodes {
		var wn *store.WorkflowNode
		if !isTempID(spec.ID) {
			wn = existingNodeByID[spec.ID]
		}
		if wn == nil {
			wn = &store.WorkflowNode{WorkflowID: workflowID}
		}
		wn.Name = spec.Name
		wn.Category = string(spec.Category)
		wn.ConnectorID = spec.ConnectorID
		wn.Config = spec.Config
		wn.Position = spec.Position

		if err := e.store.Save(wn); err != nil {
			return graphmodel.ValidationResult{}, nil, nil, fmt.Errorf("saving node %s: %w", spec.ID, err)
		}
		if isTempID(spec.ID) {
			idRemap[spec.ID] = wn.ID
		}
		keepNodeIDs[wn.ID] = true
		savedNodes = append(savedNodes, *wn)
	}

	for _, r := range existingNodes {
		wn := r.(*store.WorkflowNode)
		if !keepNodeIDs[wn.ID] {
			_ = e.store.Delete(store.KindWorkflowNode, wn.ID)
		}
	}

	resolve := func(id string) string {
		if remapped, ok := idRemap[id]; ok {
			return remapped
		}
		return id
	}

	existingEdges := e.store.FindByFilter(store.KindWorkflowConnection, map[string]interface{}{"WorkflowID": workflowID})
	existingEdgeByID := make(map[string]*store.WorkflowConnection, len(existingEdges))
	for _, r := range existingEdges {
		we := r.(*store.WorkflowConnection)
		existingEdgeByID[we.ID] = we
	}

	keepEdgeIDs := make(map[string]bool, len(edges))
	savedEdges := make([]store.WorkflowConnection, 0, len(edges))

	for _, spec := range edges {
		var we *store.WorkflowConnection
		if !isTempID(spec.ID) {
			we = existingEdgeByID[spec.ID]
		}
		if we == nil {
			we = &store.WorkflowConnection{WorkflowID: workflowID}
		}
		we.SourceNodeID = resolve(spec.SourceNodeID)
		we.TargetNodeID = resolve(spec.TargetNodeID)

		if err := e.store.Save(we); err != nil {
			return graphmodel.ValidationResult{}, nil, nil, fmt.Errorf("saving edge %s: %w", spec.ID, err)
		}
		keepEdgeIDs[we.ID] = true
		savedEdges = append(savedEdges, *we)
	}

	for _, r := range existingEdges {
		we := r.(*store.WorkflowConnection)
		if !keepEdgeIDs[we.ID] {
			_ = e.store.Delete(store.KindWorkflowConnection, we.ID)
		}
	}

	e.schemaCache.InvalidateWorkflow(workflowID)

	result, err := e.ValidateWorkflow(workflowID)
	if err != nil {
		return graphmodel.ValidationResult{}, savedNodes, savedEdges, err
	}
	return result, savedNodes, savedEdges, nil
}

// GetNodeOutputSchema recursively derives nodeID's output schema, consulting
// and populating the schema cache at every level (SPEC_FULL.md §4.5).
func (e *WorkflowEngine) GetNodeOutputSchema(workflowID, nodeID string) (envelope.DataSchema, error) {
	wf, err := e.loadWorkflow(workflowID)
	if err != nil {
		return envelope.DataSchema{}, err
	}
	g, err := e.buildGraph(workflowID, wf)
	if err != nil {
		return envelope.DataSchema{}, err
	}
	return e.nodeOutputSchema(workflowID, g, nodeID, make(map[string]bool))
}

// nodeOutputSchema's direct-input ordering (for inputHashes and merge
// labels) is the node ids sorted lexically rather than a true topological
// order over just the direct predecessors: SPEC_FULL.md §4.5 only requires
// the ordering be stable across calls so the cache key is deterministic,
// and sibling inputs have no topological relationship to each other anyway.
func (e *WorkflowEngine) nodeOutputSchema(workflowID string, g *graphmodel.Graph, nodeID string, visiting map[string]bool) (envelope.DataSchema, error) {
	n := g.NodeByID(nodeID)
	if n == nil {
		return envelope.DataSchema{}, fmt.Errorf("unknown node %s", nodeID)
	}
	if visiting[nodeID] {
		return envelope.DataSchema{}, fmt.Errorf("cycle detected while deriving schema for node %s", nodeID)
	}
	visiting[nodeID] = true
	defer delete(visiting, nodeID)

	configHash, err := envelope.CanonicalHash(n.Config)
	if err != nil {
		return envelope.DataSchema{}, fmt.Errorf("hashing config for node %s: %w", nodeID, err)
	}

	sortedInputs := append([]string(nil), n.Inputs...)
	sort.Strings(sortedInputs)

	inputHashes := make([]string, 0, len(sortedInputs))
	inputSchemas := make([]envelope.DataSchema, 0, len(sortedInputs))
	labels := make([]envelope.Label, 0, len(sortedInputs))
	for _, up := range sortedInputs {
		schema, err := e.nodeOutputSchema(workflowID, g, up, visiting)
		if err != nil {
			return envelope.DataSchema{}, err
		}
		hash, err := envelope.CanonicalHash(schema)
		if err != nil {
			return envelope.DataSchema{}, fmt.Errorf("hashing schema for node %s: %w", up, err)
		}
		inputHashes = append(inputHashes, hash)
		inputSchemas = append(inputSchemas, schema)
		labels = append(labels, envelope.Label{NodeID: up, Name: g.NodeByID(up).Name})
	}

	if cached, ok := e.schemaCache.Get(nodeID, configHash, inputHashes); ok {
		if e.telemetry != nil {
			e.telemetry.RecordSchemaCacheAccess(context.Background(), nodeID, true)
		}
		return cached.(envelope.DataSchema), nil
	}
	if e.telemetry != nil {
		e.telemetry.RecordSchemaCacheAccess(context.Background(), nodeID, false)
	}

	var mergedSchema *envelope.DataSchema
	if len(inputSchemas) > 0 {
		envs := make([]envelope.Envelope, len(inputSchemas))
		for i, s := range inputSchemas {
			envs[i] = envelope.New(nil, s, labels[i].NodeID, "", nil)
		}
		merged := envelope.Merge(envs, labels)
		mergedSchema = &merged.Metadata.Schema
	}

	conn, err := e.registry.Create(n.ConnectorID)
	if err != nil {
		return envelope.DataSchema{}, err
	}
	if err := conn.Configure(n.Config); err != nil {
		return envelope.DataSchema{}, err
	}
	aware, ok := conn.(connector.SchemaAware)
	if !ok {
		return envelope.DataSchema{}, fmt.Errorf("connector %s does not support schema introspection", n.ConnectorID)
	}
	schema, err := aware.OutputSchema(mergedSchema)
	if err != nil {
		return envelope.DataSchema{}, err
	}

	e.schemaCache.Set(workflowID, nodeID, configHash, inputHashes, schema)
	return schema, nil
}

// GetNodeSampleData executes nodeID and its upstream dependency chain
// in-process, truncating every intermediate envelope to limit records
// (SPEC_FULL.md §4.5). It never writes to the execution record and never
// consults or populates the schema cache, since connectors may have
// side effects.
func (e *WorkflowEngine) GetNodeSampleData(workflowID, nodeID string, limit int) (map[string]interface{}, error) {
	if limit <= 0 {
		limit = e.config.SampleLimitDefault
	}
	if limit > e.config.SampleLimitMax {
		limit = e.config.SampleLimitMax
	}

	wf, err := e.loadWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	g, err := e.buildGraph(workflowID, wf)
	if err != nil {
		return nil, err
	}

	env, err := e.nodeSampleData(context.Background(), g, nodeID, limit, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	return env.ToMap(), nil
}

func (e *WorkflowEngine) nodeSampleData(ctx context.Context, g *graphmodel.Graph, nodeID string, limit int, visiting map[string]bool) (envelope.Envelope, error) {
	if visiting[nodeID] {
		return envelope.Envelope{}, fmt.Errorf("cycle detected while previewing node %s", nodeID)
	}
	visiting[nodeID] = true
	defer delete(visiting, nodeID)

	n := g.NodeByID(nodeID)
	if n == nil {
		return envelope.Envelope{}, fmt.Errorf("unknown node %s", nodeID)
	}

	sortedInputs := append([]string(nil), n.Inputs...)
	sort.Strings(sortedInputs)

	var input map[string]interface{}
	if len(sortedInputs) > 0 {
		envs := make([]envelope.Envelope, 0, len(sortedInputs))
		labels := make([]envelope.Label, 0, len(sortedInputs))
		for _, up := range sortedInputs {
			upEnv, err := e.nodeSampleData(ctx, g, up, limit, visiting)
			if err != nil {
				return envelope.Envelope{}, err
			}
			if len(upEnv.Data) > limit {
				upEnv.Data = upEnv.Data[:limit]
			}
			envs = append(envs, upEnv)
			labels = append(labels, envelope.Label{NodeID: up, Name: g.NodeByID(up).Name})
		}
		merged := envelope.Merge(envs, labels)
		input = merged.ToMap()
	}

	conn, err := e.registry.Create(n.ConnectorID)
	if err != nil {
		return envelope.Envelope{}, err
	}
	if err := conn.Configure(n.Config); err != nil {
		return envelope.Envelope{}, err
	}
	out, err := conn.Execute(ctx, input)
	if err != nil {
		return envelope.Envelope{}, err
	}
	env, err := envelope.FromMap(out)
	if err != nil {
		return envelope.Envelope{}, err
	}
	if len(env.Data) > limit {
		env.Data = env.Data[:limit]
	}
	return env, nil
}

// GetWorkflowSchema derives every node's output schema, folding a
// per-node derivation failure into that node's Error field instead of
// aborting the whole introspection (SPEC_FULL.md §7).
func (e *WorkflowEngine) GetWorkflowSchema(workflowID string) (map[string]NodeSchemaResult, error) {
	wf, err := e.loadWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	g, err := e.buildGraph(workflowID, wf)
	if err != nil {
		return nil, err
	}

	out := make(map[string]NodeSchemaResult, len(g.Nodes))
	for id, n := range g.Nodes {
		schema, err := e.nodeOutputSchema(workflowID, g, id, make(map[string]bool))
		if err != nil {
			out[id] = NodeSchemaResult{NodeName: n.Name, ConnectorID: n.ConnectorID, Error: err.Error()}
			continue
		}
		s := schema
		out[id] = NodeSchemaResult{NodeName: n.Name, ConnectorID: n.ConnectorID, OutputSchema: &s}
	}
	return out, nil
}
