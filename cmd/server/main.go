// Command server starts the flowforge workflow engine HTTP API server.
//
// Usage:
//
//	server [flags]
//
// Flags:
//
//	-addr string
//	    Server address (default ":8080")
//	-read-timeout duration
//	    HTTP read timeout (default 30s)
//	-write-timeout duration
//	    HTTP write timeout (default 30s)
//	-default-timeout duration
//	    Default workflow execution timeout when a workflow sets none (default 1h)
//	-max-parallel int
//	    Maximum concurrently-running node workers (default 10)
//	-schema-cache-max int
//	    Maximum schema cache entries (default 1000)
//
// Example:
//
//	# Start server on default port
//	server
//
//	# Start server on custom port with a shorter default workflow timeout
//	server -addr :9090 -default-timeout 5m
//
// The server exposes the following endpoints:
//
//	POST   /api/v1/workflows/{workflowId}/execute            - Execute a workflow
//	GET    /api/v1/executions/{executionId}                  - Get execution status
//	GET    /api/v1/workflows/{workflowId}/validate            - Validate a workflow
//	PUT    /api/v1/workflows/{workflowId}/graph                - Save a workflow's nodes/edges
//	GET    /api/v1/workflows/{workflowId}/nodes/{nodeId}/schema - Get a node's output schema
//	GET    /api/v1/workflows/{workflowId}/nodes/{nodeId}/sample - Get a node's sample data
//	GET    /api/v1/workflows/{workflowId}/schema                - Get every node's output schema
//	GET    /health                                              - Health check
//	GET    /health/live                                          - Liveness probe
//	GET    /health/ready                                        - Readiness probe
//	GET    /metrics                                              - Prometheus metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shashank-sharma/flowforge/connectors"
	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engine"
	"github.com/shashank-sharma/flowforge/pkg/server"
	"github.com/shashank-sharma/flowforge/pkg/store"
)

func main() {
	addr := flag.String("addr", ":8080", "Server address")
	readTimeout := flag.Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	defaultTimeout := flag.Duration("default-timeout", 3600*time.Second, "Default workflow execution timeout")
	maxParallel := flag.Int("max-parallel", 10, "Maximum concurrently-running node workers")
	schemaCacheMax := flag.Int("schema-cache-max", 1000, "Maximum schema cache entries")

	flag.Parse()

	serverConfig := server.Config{
		Address:            *addr,
		ReadTimeout:        *readTimeout,
		WriteTimeout:       *writeTimeout,
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		EnableCORS:         true,
	}

	engineConfig := engine.DefaultConfig()
	engineConfig.DefaultWorkflowTimeout = *defaultTimeout
	engineConfig.MaxParallel = *maxParallel
	engineConfig.SchemaCacheMax = *schemaCacheMax

	registry := connector.NewRegistry()
	connectors.Register(registry)
	st := store.NewInMemoryStore()

	srv, err := server.New(serverConfig, st, registry, engineConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		fmt.Printf("Starting flowforge workflow engine server on %s\n", *addr)
		fmt.Printf("Health check:     http://localhost%s/health\n", *addr)
		fmt.Printf("Liveness probe:   http://localhost%s/health/live\n", *addr)
		fmt.Printf("Readiness probe:  http://localhost%s/health/ready\n", *addr)
		fmt.Printf("Metrics:          http://localhost%s/metrics\n", *addr)
		fmt.Println("\nPress Ctrl+C to shutdown")

		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)
		fmt.Println("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Server stopped")
	}
}
