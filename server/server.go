package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/agentconductor/conductor"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
	"github.com/hupe1980/agentconductor/observability"
	"github.com/hupe1980/agentconductor/store"
	"github.com/hupe1980/agentconductor/tool"
)

// DefaultMaxBodyBytes limits request bodies to 1 MiB.
const DefaultMaxBodyBytes = 1 << 20

// AgentService is the subset of the agent registry the server uses.
type AgentService interface {
	Register(name, model, instructions string) (core.Agent, error)
	AttachTool(id core.AgentID, toolName string) (core.Agent, error)
	List() []core.Agent
}

// ToolCatalog describes registered tools.
type ToolCatalog interface {
	Definitions(names ...string) []tool.Definition
}

// Runner executes conversation runs. *conductor.Conductor satisfies it.
type Runner interface {
	Run(ctx context.Context, req conductor.Request) (*conductor.Result, error)
}

// Options configures a Server.
type Options struct {
	Logger logging.Logger
	// Metrics enables request metrics and the /metrics route. May be nil.
	Metrics *observability.Metrics
	// Store archives finished runs and backs /conversations. May be nil.
	Store store.TranscriptStore
	// RunTimeout bounds a whole /start-conversation run. Zero means no bound.
	RunTimeout time.Duration
	// MaxTurnsLimit rejects requests asking for more turns. Zero means no limit.
	MaxTurnsLimit int
	MaxBodyBytes  int64
	// Assistants enables POST /assistant, /thread and /run. May be nil.
	Assistants AssistantService
	// ReadTimeout and WriteTimeout are applied by ListenAndServe.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the HTTP surface.
type Server struct {
	agents AgentService
	tools  ToolCatalog
	runner Runner
	logger logging.Logger
	opts   Options
}

// New creates a Server.
func New(agents AgentService, tools ToolCatalog, runner Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:       logging.NoOpLogger{},
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Server{
		agents: agents,
		tools:  tools,
		runner: runner,
		logger: logging.OrNoOp(opts.Logger),
		opts:   opts,
	}
}

// Handler returns the routed handler wrapped in recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "POST /create-agent", s.handleCreateAgent)
	s.handle(mux, "POST /add-tool", s.handleAddTool)
	s.handle(mux, "GET /agents", s.handleListAgents)
	s.handle(mux, "GET /tools", s.handleListTools)
	s.handle(mux, "POST /start-conversation", s.handleStartConversation)
	s.handle(mux, "GET /conversations", s.handleListConversations)
	s.handle(mux, "GET /conversations/{id}", s.handleGetConversation)
	s.handle(mux, "GET /health", s.handleHealth)
	if s.opts.Assistants != nil {
		s.handle(mux, "POST /assistant", s.handleAssistant)
		s.handle(mux, "POST /thread", s.handleThread)
		s.handle(mux, "POST /run", s.handleRun)
	}
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}

	return s.recoverMiddleware(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http.listen", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http.shutdown", "timeout", shutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
