package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engine"
	"github.com/shashank-sharma/flowforge/pkg/health"
	"github.com/shashank-sharma/flowforge/pkg/store"
	"github.com/shashank-sharma/flowforge/pkg/telemetry"
)

// Config holds server configuration
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// ShutdownTimeout for graceful shutdown
	ShutdownTimeout time.Duration

	// MaxRequestBodySize limits request body size
	MaxRequestBodySize int64

	// EnableCORS enables CORS headers
	EnableCORS bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Address:            ":8080",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		EnableCORS:         true,
	}
}

// Server is the HTTP API surface SPEC_FULL.md §6 names, fronting a single
// *engine.WorkflowEngine composition root. It owns no workflow state of its
// own: every handler is a thin decode/call/encode around one WorkflowEngine
// method.
type Server struct {
	config            Config
	httpServer        *http.Server
	healthChecker     *health.Checker
	telemetryProvider *telemetry.Provider
	logger            zerolog.Logger
	eng               *engine.WorkflowEngine
}

// New wires a Store and connector Registry into a WorkflowEngine and exposes
// it over HTTP. engineConfig tunes the WorkflowEngine (SPEC_FULL.md §6);
// pass engine.DefaultConfig() for the documented constants.
func New(config Config, st store.Store, registry *connector.Registry, engineConfig engine.Config) (*Server, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	telemetryConfig := telemetry.DefaultConfig()
	telemetryProvider, err := telemetry.NewProvider(context.Background(), telemetryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}

	eng, err := engine.NewWorkflowEngine(st, registry, engineConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow engine: %w", err)
	}
	eng = eng.WithTelemetry(telemetryProvider)

	healthChecker := health.NewChecker("flowforge-workflow-engine", "0.1.0")
	healthChecker.RegisterCheck("registry", func(ctx context.Context) error {
		return eng.Ready()
	}, 5*time.Second, true)
	healthChecker.RegisterCheck("schema_cache", func(ctx context.Context) error {
		stats := eng.SchemaCacheStats()
		if stats.Sets > 0 && stats.Evictions > stats.Sets/2 {
			return &health.DegradedError{Err: fmt.Errorf(
				"schema cache eviction rate high: %d evictions of %d sets", stats.Evictions, stats.Sets)}
		}
		return nil
	}, 5*time.Second, false)

	server := &Server{
		config:            config,
		healthChecker:     healthChecker,
		telemetryProvider: telemetryProvider,
		logger:            logger,
		eng:               eng,
	}

	mux := http.NewServeMux()
	server.registerRoutes(mux)

	server.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      server.middlewareChain(mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("/health", s.healthChecker.HTTPHandler())
	mux.HandleFunc("/health/live", s.healthChecker.LivenessHandler())
	mux.HandleFunc("/health/ready", s.healthChecker.ReadinessHandler())

	// Metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Workflow API — SPEC_FULL.md §6's seven engine-facing operations.
	mux.HandleFunc("POST /api/v1/workflows/{workflowId}/execute", s.handleExecuteWorkflow)
	mux.HandleFunc("GET /api/v1/executions/{executionId}", s.handleGetExecutionStatus)
	mux.HandleFunc("GET /api/v1/workflows/{workflowId}/validate", s.handleValidateWorkflow)
	mux.HandleFunc("PUT /api/v1/workflows/{workflowId}/graph", s.handleSaveWorkflowGraph)
	mux.HandleFunc("GET /api/v1/workflows/{workflowId}/nodes/{nodeId}/schema", s.handleGetNodeOutputSchema)
	mux.HandleFunc("GET /api/v1/workflows/{workflowId}/nodes/{nodeId}/sample", s.handleGetNodeSampleData)
	mux.HandleFunc("GET /api/v1/workflows/{workflowId}/schema", s.handleGetWorkflowSchema)
}

// middlewareChain applies middleware to the handler
func (s *Server) middlewareChain(handler http.Handler) http.Handler {
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// handleExecuteWorkflow starts an async run and returns the running
// ExecutionRecord immediately (SPEC_FULL.md §6 executeWorkflow).
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflowId")

	exec, err := s.eng.ExecuteWorkflow(workflowID)
	if err != nil {
		s.writeErrorResponse(w, "failed to start workflow execution", http.StatusBadRequest, err)
		return
	}

	s.writeJSONResponse(w, http.StatusAccepted, exec)
}

// handleGetExecutionStatus returns an execution's current snapshot
// (SPEC_FULL.md §6 getExecutionStatus).
func (s *Server) handleGetExecutionStatus(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("executionId")

	snapshot, err := s.eng.GetExecutionStatus(executionID)
	if err != nil {
		s.writeErrorResponse(w, "execution not found", http.StatusNotFound, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, snapshot)
}

// handleValidateWorkflow runs the structural checks without executing
// anything (SPEC_FULL.md §6 validateWorkflow).
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflowId")

	result, err := s.eng.ValidateWorkflow(workflowID)
	if err != nil {
		s.writeErrorResponse(w, "failed to validate workflow", http.StatusNotFound, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// saveGraphRequest is the request body for PUT .../graph.
type saveGraphRequest struct {
	Nodes []engine.NodeSpec `json:"nodes"`
	Edges []engine.EdgeSpec `json:"edges"`
}

// saveGraphResponse is the response body for PUT .../graph.
type saveGraphResponse struct {
	Validation interface{}                 `json:"validation"`
	Nodes      []store.WorkflowNode       `json:"nodes"`
	Edges      []store.WorkflowConnection `json:"edges"`
}

// handleSaveWorkflowGraph performs the diff upsert described in
// SPEC_FULL.md §6 saveWorkflowGraph, remapping temporary node/edge ids to
// their durable ids.
func (s *Server) handleSaveWorkflowGraph(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflowId")

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErrorResponse(w, "failed to read request body", http.StatusBadRequest, err)
		return
	}

	var req saveGraphRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeErrorResponse(w, "invalid request body", http.StatusBadRequest, err)
		return
	}

	validation, savedNodes, savedEdges, err := s.eng.SaveWorkflowGraph(workflowID, req.Nodes, req.Edges)
	if err != nil {
		s.writeErrorResponse(w, "failed to save workflow graph", http.StatusBadRequest, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, saveGraphResponse{
		Validation: validation,
		Nodes:      savedNodes,
		Edges:      savedEdges,
	})
}

// handleGetNodeOutputSchema derives one node's output schema
// (SPEC_FULL.md §6 getNodeOutputSchema).
func (s *Server) handleGetNodeOutputSchema(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflowId")
	nodeID := r.PathValue("nodeId")

	schema, err := s.eng.GetNodeOutputSchema(workflowID, nodeID)
	if err != nil {
		s.writeErrorResponse(w, "failed to derive node output schema", http.StatusBadRequest, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, schema)
}

// handleGetNodeSampleData executes a node's upstream chain in-process and
// returns a truncated preview (SPEC_FULL.md §6 getNodeSampleData).
func (s *Server) handleGetNodeSampleData(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflowId")
	nodeID := r.PathValue("nodeId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeErrorResponse(w, "invalid limit parameter", http.StatusBadRequest, err)
			return
		}
		limit = parsed
	}

	data, err := s.eng.GetNodeSampleData(workflowID, nodeID, limit)
	if err != nil {
		s.writeErrorResponse(w, "failed to generate node sample data", http.StatusBadRequest, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, data)
}

// handleGetWorkflowSchema derives every node's output schema, folding
// per-node failures into the per-node map rather than failing the whole
// call (SPEC_FULL.md §6 getWorkflowSchema).
func (s *Server) handleGetWorkflowSchema(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflowId")

	schemas, err := s.eng.GetWorkflowSchema(workflowID)
	if err != nil {
		s.writeErrorResponse(w, "failed to derive workflow schema", http.StatusNotFound, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, schemas)
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int, err error) {
	s.logger.Error().Err(err).Int("status_code", statusCode).Msg(message)

	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
		"details": err.Error(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.config.Address).Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	if err := s.telemetryProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown telemetry: %w", err)
	}

	s.logger.Info().Msg("server shutdown complete")
	return nil
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(startTime)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", rw.statusCode).
			Int64("duration_ms", duration.Milliseconds()).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}

// recoveryMiddleware recovers from panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("panic recovered")

				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
