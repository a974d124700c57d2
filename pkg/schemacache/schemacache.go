// Package schemacache memoizes design-time output-schema derivation so the
// editor's getNodeOutputSchema calls don't recompute a node's schema on every
// keystroke (SPEC_FULL.md §4.5). getNodeSampleData does not use the cache.
package schemacache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries is the eviction threshold (SPEC_FULL.md §4.5).
const DefaultMaxEntries = 1000

// DefaultTTL is how long a cached entry stays valid regardless of hash match.
const DefaultTTL = 5 * time.Minute

// entry is the cache payload for one node: its derived schema plus the
// hashes that must still match for the entry to be considered fresh.
type entry struct {
	schema      interface{}
	configHash  string
	inputHashes []string
	storedAt    time.Time
	workflowID  string
}

// Cache memoizes schemas keyed by node id, with a secondary workflowId→nodeId
// index so a save can invalidate every affected node in one pass
// (SPEC_FULL.md §4.5). The underlying bounded map is an LRU container so
// "evict the single oldest" and the secondary index share one lock.
type Cache struct {
	mu         sync.Mutex
	lru        *lru.Cache[string, *entry]
	byWorkflow map[string]map[string]struct{}
	ttl        time.Duration

	hits      uint64
	misses    uint64
	evictions uint64
	sets      uint64
}

// New creates a cache bounded at maxEntries (DefaultMaxEntries if <= 0) with
// the given TTL (DefaultTTL if <= 0).
func New(maxEntries int, ttl time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		byWorkflow: make(map[string]map[string]struct{}),
		ttl:        ttl,
	}

	l, err := lru.NewWithEvict[string, *entry](maxEntries, c.onEvicted)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// onEvicted keeps the secondary workflowId->nodeId index in sync whenever the
// LRU container evicts an entry on its own (size pressure), not just when
// InvalidateWorkflow removes entries explicitly. Called with c.mu held.
func (c *Cache) onEvicted(nodeID string, e *entry) {
	atomic.AddUint64(&c.evictions, 1)
	if set, ok := c.byWorkflow[e.workflowID]; ok {
		delete(set, nodeID)
		if len(set) == 0 {
			delete(c.byWorkflow, e.workflowID)
		}
	}
}

// Get returns the cached schema for nodeID if present and still valid: its
// configHash and inputHashes must match exactly and its age must be under
// the TTL (SPEC_FULL.md §4.5 step 3).
func (c *Cache) Get(nodeID, configHash string, inputHashes []string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(nodeID)
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	if !e.valid(configHash, inputHashes, c.ttl) {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&c.hits, 1)
	return e.schema, true
}

func (e *entry) valid(configHash string, inputHashes []string, ttl time.Duration) bool {
	if e.configHash != configHash {
		return false
	}
	if len(e.inputHashes) != len(inputHashes) {
		return false
	}
	for i, h := range inputHashes {
		if e.inputHashes[i] != h {
			return false
		}
	}
	return time.Since(e.storedAt) < ttl
}

// Set stores schema for nodeID under workflowID, replacing any prior entry.
func (c *Cache) Set(workflowID, nodeID, configHash string, inputHashes []string, schema interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(nodeID, &entry{
		schema:      schema,
		configHash:  configHash,
		inputHashes: append([]string(nil), inputHashes...),
		storedAt:    now(),
		workflowID:  workflowID,
	})

	set, ok := c.byWorkflow[workflowID]
	if !ok {
		set = make(map[string]struct{})
		c.byWorkflow[workflowID] = set
	}
	set[nodeID] = struct{}{}

	atomic.AddUint64(&c.sets, 1)
}

// InvalidateWorkflow evicts every cached node belonging to workflowID, used
// after a graph save so stale schemas are never served (SPEC_FULL.md §4.5).
func (c *Cache) InvalidateWorkflow(workflowID string) {
	c.mu.Lock()
	nodeIDs := make([]string, 0, len(c.byWorkflow[workflowID]))
	for id := range c.byWorkflow[workflowID] {
		nodeIDs = append(nodeIDs, id)
	}
	delete(c.byWorkflow, workflowID)
	c.mu.Unlock()

	for _, id := range nodeIDs {
		c.mu.Lock()
		c.lru.Remove(id)
		c.mu.Unlock()
	}
}

// Stats reports the atomic hit/miss/eviction/set counters feeding telemetry
// (SPEC_FULL.md §5 "atomic counters for hit/miss/eviction/set metrics").
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Sets      uint64
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
		Sets:      atomic.LoadUint64(&c.sets),
	}
}

// now is indirected so tests can't be tempted to depend on wall-clock
// granularity beyond what time.Since already guarantees.
var now = time.Now
