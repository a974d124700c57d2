// Package store defines the persistence boundary the engine consumes: an
// opaque record interface plus findById/findByFilter/save/delete, with an
// in-memory reference implementation (SPEC_FULL.md §6). The engine core
// never imports a concrete database driver — it only depends on the Store
// interface, so a real deployment supplies its own implementation.
package store

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which record table/collection an operation targets.
type Kind string

const (
	KindWorkflow           Kind = "Workflow"
	KindWorkflowNode       Kind = "WorkflowNode"
	KindWorkflowConnection Kind = "WorkflowConnection"
	KindWorkflowExecution  Kind = "WorkflowExecution"
)

// Record is the opaque persisted-row contract: every stored value carries an
// id, and Save may fill that id in when absent.
type Record interface {
	RecordID() string
	setRecordID(id string)
}

// Workflow is the engine's top-level definition record (SPEC_FULL.md §3.1).
type Workflow struct {
	ID                string
	Name              string
	TimeoutSeconds    int
	MaxRetries        int
	RetryDelaySeconds int
	NodeTypeDefaults  map[string]string // nodeType -> connectorId, legacy alias
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (w *Workflow) RecordID() string        { return w.ID }
func (w *Workflow) setRecordID(id string)   { w.ID = id }

// WorkflowNode is a persisted node row (SPEC_FULL.md §3).
type WorkflowNode struct {
	ID          string
	WorkflowID  string
	Name        string
	Category    string
	ConnectorID string
	Config      map[string]interface{}
	Position    interface{}
}

func (n *WorkflowNode) RecordID() string      { return n.ID }
func (n *WorkflowNode) setRecordID(id string) { n.ID = id }

// WorkflowConnection is a persisted edge row.
type WorkflowConnection struct {
	ID           string
	WorkflowID   string
	SourceNodeID string
	TargetNodeID string
}

func (c *WorkflowConnection) RecordID() string      { return c.ID }
func (c *WorkflowConnection) setRecordID(id string) { c.ID = id }

// WorkflowExecution is the persisted execution record (SPEC_FULL.md §3).
type WorkflowExecution struct {
	ID           string
	WorkflowID   string
	Status       string
	StartTime    time.Time
	EndTime      time.Time
	DurationMs   int64
	ErrorMessage string
	Logs         string // serialized JSON array of structured events
	Results      string // serialized JSON object: destination node id -> envelope map
}

func (e *WorkflowExecution) RecordID() string      { return e.ID }
func (e *WorkflowExecution) setRecordID(id string) { e.ID = id }

// Store is the persistence boundary the engine core depends on.
type Store interface {
	FindByID(kind Kind, id string) (Record, bool)
	FindByFilter(kind Kind, filter map[string]interface{}) []Record
	Save(record Record) error
	Delete(kind Kind, id string) error
}

// InMemoryStore implements Store with mutex-guarded maps keyed by kind then
// id, the same shape as the teacher's InMemoryStore (pkg/storage/storage.go)
// generalized from a single workflow table to the four record kinds
// SPEC_FULL.md §6 names.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[Kind]map[string]Record
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: map[Kind]map[string]Record{
			KindWorkflow:           {},
			KindWorkflowNode:       {},
			KindWorkflowConnection: {},
			KindWorkflowExecution:  {},
		},
	}
}

// FindByID returns the record stored under kind/id, or false if absent.
func (s *InMemoryStore) FindByID(kind Kind, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[kind][id]
	return r, ok
}

// FindByFilter returns every record of kind whose exported fields match all
// of filter (field name -> expected value), e.g. {"WorkflowID": "wf-1"} to
// list a workflow's nodes.
func (s *InMemoryStore) FindByFilter(kind Kind, filter map[string]interface{}) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.data[kind] {
		if fieldsMatch(r, filter) {
			out = append(out, r)
		}
	}
	return out
}

func fieldsMatch(r Record, filter map[string]interface{}) bool {
	v := reflect.ValueOf(r)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	for field, want := range filter {
		fv := v.FieldByName(field)
		if !fv.IsValid() || !reflect.DeepEqual(fv.Interface(), want) {
			return false
		}
	}
	return true
}

// Save upserts record, assigning a uuid if its id is empty, and indexes it
// under the kind derived from its concrete type.
func (s *InMemoryStore) Save(record Record) error {
	kind, ok := kindOf(record)
	if !ok {
		return fmt.Errorf("store: unsupported record type %T", record)
	}
	if record.RecordID() == "" {
		record.setRecordID(uuid.New().String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[kind][record.RecordID()] = record
	return nil
}

// Delete removes the record stored under kind/id.
func (s *InMemoryStore) Delete(kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[kind][id]; !ok {
		return fmt.Errorf("store: %s %s not found", kind, id)
	}
	delete(s.data[kind], id)
	return nil
}

func kindOf(r Record) (Kind, bool) {
	switch r.(type) {
	case *Workflow:
		return KindWorkflow, true
	case *WorkflowNode:
		return KindWorkflowNode, true
	case *WorkflowConnection:
		return KindWorkflowConnection, true
	case *WorkflowExecution:
		return KindWorkflowExecution, true
	}
	return "", false
}
