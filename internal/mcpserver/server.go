package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/ragmcp/pkg/version"
)

// Server is the MCP server for the retrieval service. It bridges AI
// clients with the six retrieval strategies via the CQRS split described
// in §4.9: mutating/long-running tools and fast read-only resources.
type Server struct {
	mcp  *mcp.Server
	deps *Dependencies
}

// NewServer builds a Server and registers every tool and resource.
func NewServer(deps *Dependencies) (*Server, error) {
	if deps == nil {
		return nil, errors.New("mcpserver: dependencies are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{deps: deps}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "ragmcp",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// registerTools wires the three CQRS "commands" from §4.9.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "research_deep",
		Description: "Answers a natural-language question end to end: retrieves sources with the chosen (or auto-selected) strategy, synthesizes an answer, and optionally scores it with the reference-free quality evaluator. Slower than the retriever:// resource because it runs synthesis and evaluation.",
	}, s.researchDeepHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "evaluate_rag",
		Description: "Runs the reference-free quality evaluator over the golden dataset for one strategy and returns aggregate RAGAS-style scores.",
	}, s.evaluateRagHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "strategy_compare",
		Description: "Runs the same question through multiple retrieval strategies in parallel and reports per-strategy latency, result counts, and a recommendation for which strategy fits the query.",
	}, s.strategyCompareHandler)

	s.deps.Logger.Info("mcp tools registered", slog.Int("count", 3))
}

// Serve runs the server on the configured transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	transport := s.deps.Config.Server.Transport
	s.deps.Logger.Info("starting mcp server", slog.String("transport", transport))
	defer s.closeTelemetry()

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.deps.Logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.deps.Logger.Info("mcp server stopped")
		return nil
	case "http":
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("mcpserver: unknown transport %q (supported: stdio, http)", transport)
	}
}

// closeTelemetry flushes the query-pattern collector's in-memory aggregates
// to its SQLite store, if one is configured, on shutdown.
func (s *Server) closeTelemetry() {
	if s.deps.QueryMetrics == nil {
		return
	}
	if err := s.deps.QueryMetrics.Close(); err != nil {
		s.deps.Logger.Warn("flush query metrics on shutdown failed", slog.String("error", err.Error()))
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := s.Health(r.Context())
		status := http.StatusOK
		if !health.Healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"healthy":%v}`, health.Healthy)
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SubsystemStatus reports one component's health for the health probe.
type SubsystemStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// HealthReport is the server's aggregate health probe response.
type HealthReport struct {
	Healthy    bool              `json:"healthy"`
	Subsystems []SubsystemStatus `json:"subsystems"`
}

// Health reports per-subsystem status: vector store, cache, retriever
// registry, configuration.
func (s *Server) Health(ctx context.Context) HealthReport {
	subsystems := []SubsystemStatus{
		{Name: "configuration", Healthy: s.deps.Config != nil},
		{Name: "retriever_registry", Healthy: len(s.deps.Pipelines) > 0, Detail: fmt.Sprintf("%d strategies registered", len(s.deps.Pipelines))},
	}

	if s.deps.Cache != nil {
		subsystems = append(subsystems, SubsystemStatus{Name: "cache", Healthy: true})
	}
	if s.deps.VectorStore != nil {
		stats := s.deps.VectorStore.Stats()
		subsystems = append(subsystems, SubsystemStatus{
			Name:    "vector_store",
			Healthy: true,
			Detail:  fmt.Sprintf("%d valid vectors", stats.ValidIDs),
		})
	}
	if s.deps.LLM != nil {
		subsystems = append(subsystems, SubsystemStatus{Name: "llm", Healthy: s.deps.LLM.Available(ctx)})
	}

	healthy := true
	for _, sub := range subsystems {
		if !sub.Healthy {
			healthy = false
			break
		}
	}
	return HealthReport{Healthy: healthy, Subsystems: subsystems}
}

// InfoReport is the server's server-info probe response.
type InfoReport struct {
	Name               string   `json:"name"`
	Version            string   `json:"version"`
	Capabilities       []string `json:"capabilities"`
	RegisteredTools    []string `json:"registered_tools"`
	RegisteredResources []string `json:"registered_resources"`
}

// Info reports version, capabilities, and what's registered.
func (s *Server) Info() InfoReport {
	return InfoReport{
		Name:                "ragmcp",
		Version:             version.Version,
		Capabilities:        []string{"tools", "resources"},
		RegisteredTools:     []string{"research_deep", "evaluate_rag", "strategy_compare"},
		RegisteredResources: []string{"retriever://{strategy}/{query}", "strategies://info", "collection://{name}/stats", "cache://stats", "metrics://{strategy}", "telemetry://query-patterns"},
	}
}

// MCPServer returns the underlying SDK server, for transport tests that
// need to drive it directly.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
