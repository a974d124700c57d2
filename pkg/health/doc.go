// Package health provides the /health, /health/live and /health/ready probes
// pkg/server exposes over the WorkflowEngine composition root.
//
// A Checker aggregates named Checks: liveness always reports healthy,
// readiness runs every registered CheckFunc with its own timeout and folds
// the results into one overall Status. A critical check returning a plain
// error makes the whole service unhealthy; returning a *DegradedError
// reports degraded instead, for a dependency that's impaired but still
// serving (see pkg/server.New's schema-cache check).
package health
