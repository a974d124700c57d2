package engine

import "time"

// Config tunes the workflow engine at construction time (SPEC_FULL.md §6).
// There is no file-based config loader: the engine is embedded as a library,
// so overrides happen in Go, in the style of the teacher's own DefaultConfig/
// DevelopmentConfig/ValidationLimits family in its root config.go.
type Config struct {
	MaxParallel             int
	SchemaCacheTTL           time.Duration
	SchemaCacheMax           int
	// LogFlushInterval and LogFlushBatch are not read by WorkflowEngine: the
	// execution log buffer always uses logbuffer.FlushInterval and
	// logbuffer.FlushBatch, whatever these fields hold.
	LogFlushInterval         time.Duration
	LogFlushBatch            int
	DefaultWorkflowTimeout   time.Duration
	SampleLimitMax           int
	SampleLimitDefault       int
}

// DefaultConfig returns the constants named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		MaxParallel:           10,
		SchemaCacheTTL:        5 * time.Minute,
		SchemaCacheMax:        1000,
		LogFlushInterval:      2 * time.Second,
		LogFlushBatch:         10,
		DefaultWorkflowTimeout: 3600 * time.Second,
		SampleLimitMax:        100,
		SampleLimitDefault:    20,
	}
}

// DevelopmentConfig shortens the default workflow timeout to 30 minutes and
// raises the schema-cache bound for local iteration, following the shape of
// the teacher's own DevelopmentConfig.
func DevelopmentConfig() Config {
	c := DefaultConfig()
	c.DefaultWorkflowTimeout = 30 * time.Minute
	c.SchemaCacheMax = 10000
	return c
}

// TestingConfig shortens every wait-sensitive constant so tests exercising
// timeouts and cache TTLs don't need to sleep for production-length windows.
func TestingConfig() Config {
	c := DefaultConfig()
	c.DefaultWorkflowTimeout = 30 * time.Second
	c.SchemaCacheTTL = 2 * time.Second
	c.LogFlushInterval = 200 * time.Millisecond
	return c
}
