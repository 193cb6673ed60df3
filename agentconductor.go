// Package agentconductor provides a high-level façade over the agent
// registry, tool registry and round-robin conductor. Most applications
// interact with this package by:
//  1. Creating a Conductor via New() (optionally overriding the provider,
//     transcript store, tools and logger)
//  2. Registering agents and attaching tools to them
//  3. Starting conversations that the agents take turns answering
//
// All defaults are safe for local development and testing: the mock
// completion provider, the built-in tools and an in-memory transcript store.
package agentconductor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentconductor/agent"
	"github.com/hupe1980/agentconductor/assistant"
	"github.com/hupe1980/agentconductor/conductor"
	"github.com/hupe1980/agentconductor/config"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
	"github.com/hupe1980/agentconductor/model"
	"github.com/hupe1980/agentconductor/observability"
	"github.com/hupe1980/agentconductor/server"
	"github.com/hupe1980/agentconductor/store"
	"github.com/hupe1980/agentconductor/tool"
)

// Options configures the Conductor.
type Options struct {
	// Provider answers every turn. Defaults to the mock provider.
	Provider model.Provider
	// Tools are registered next to the built-ins.
	Tools []tool.Tool
	// DisableBuiltinTools skips exampleTool, anotherTool and add.
	DisableBuiltinTools bool
	// Store archives finished runs. Defaults to an in-memory store.
	Store store.TranscriptStore
	// Metrics enables Prometheus instrumentation of runs. May be nil.
	Metrics        *observability.Metrics
	TracerProvider trace.TracerProvider
	// Callbacks receives lifecycle events in addition to the metrics recorder.
	Callbacks *conductor.CallbackManager

	DefaultMaxTurns int
	TurnTimeout     time.Duration
	StopWhenIdle    bool

	// Assistants serves the /assistant, /thread and /run routes of Server.
	// May be nil.
	Assistants *assistant.Service

	// MaxConcurrentRuns limits the number of runs that can execute
	// simultaneously. Excess runs wait for a slot or their context. Set to 0
	// for unlimited.
	MaxConcurrentRuns int64

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Conductor is the application root owning the registries and the run loop.
type Conductor struct {
	opts      Options
	agents    *agent.Registry
	tools     *tool.Registry
	conductor *conductor.Conductor
	sem       *semaphore.Weighted
	logger    logging.Logger
}

// New creates a Conductor with optional overrides.
func New(optFns ...func(o *Options)) (*Conductor, error) {
	opts := Options{
		DefaultMaxTurns: core.DefaultMaxTurns,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	if opts.Provider == nil {
		opts.Provider = model.NewMockProvider()
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}

	var builtins []tool.Tool
	if !opts.DisableBuiltinTools {
		builtins = tool.Builtins()
	}
	tools, err := tool.NewRegistry(append(builtins, opts.Tools...), func(o *tool.Options) {
		o.Logger = componentLogger(logger, "tool")
	})
	if err != nil {
		return nil, fmt.Errorf("tool registry: %w", err)
	}

	agents := agent.NewRegistry(func(o *agent.Options) {
		o.Logger = componentLogger(logger, "agent")
	})

	callbacks := opts.Callbacks
	if opts.Metrics != nil {
		if callbacks == nil {
			callbacks = conductor.NewCallbackManager()
		}
		observability.NewRunRecorder(opts.Metrics).Register(callbacks)
	}

	c := conductor.New(agents, tools, opts.Provider, func(o *conductor.Options) {
		o.Logger = componentLogger(logger, "conductor")
		o.Callbacks = callbacks
		o.TracerProvider = opts.TracerProvider
		o.DefaultMaxTurns = opts.DefaultMaxTurns
		o.TurnTimeout = opts.TurnTimeout
		o.StopWhenIdle = opts.StopWhenIdle
	})

	ac := &Conductor{
		opts:      opts,
		agents:    agents,
		tools:     tools,
		conductor: c,
		logger:    logger,
	}
	if opts.MaxConcurrentRuns > 0 {
		ac.sem = semaphore.NewWeighted(opts.MaxConcurrentRuns)
	}
	return ac, nil
}

// CreateAgent registers a new agent.
func (c *Conductor) CreateAgent(name, modelID, instructions string) (core.Agent, error) {
	return c.agents.Register(name, modelID, instructions)
}

// AddTool attaches a tool name to an agent.
func (c *Conductor) AddTool(id core.AgentID, toolName string) (core.Agent, error) {
	return c.agents.AttachTool(id, toolName)
}

// Agent returns a registered agent.
func (c *Conductor) Agent(id core.AgentID) (core.Agent, bool) { return c.agents.Get(id) }

// Agents lists registered agents ordered by id.
func (c *Conductor) Agents() []core.Agent { return c.agents.List() }

// RegisterTools adds tools to the tool registry.
func (c *Conductor) RegisterTools(tools ...tool.Tool) error { return c.tools.Register(tools...) }

// Tools lists the registered tool names.
func (c *Conductor) Tools() []string { return c.tools.Names() }

// SeedAgents registers agents from a seed file and attaches their tools.
// Unknown tool names are rejected before anything is registered.
func (c *Conductor) SeedAgents(seeds []config.AgentSeed) ([]core.Agent, error) {
	for _, s := range seeds {
		for _, t := range s.Tools {
			if !c.tools.Has(t) {
				return nil, fmt.Errorf("agent %s: %w", s.Name, core.UnknownTool(t))
			}
		}
	}

	out := make([]core.Agent, 0, len(seeds))
	for _, s := range seeds {
		a, err := c.agents.Register(s.Name, s.Model, s.Instructions)
		if err != nil {
			return out, err
		}
		for _, t := range s.Tools {
			if a, err = c.agents.AttachTool(a.ID, t); err != nil {
				return out, err
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// Run executes a conversation run, waiting for a free slot when
// MaxConcurrentRuns is set. A context that ends while waiting yields a
// cancelled result holding the seed transcript, as for any other run.
// It satisfies server.Runner.
func (c *Conductor) Run(ctx context.Context, req conductor.Request) (*conductor.Result, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.logger.Warn("run.slot_wait_cancelled", "error", err.Error())
			// ctx is done, so the conductor stops before the first turn.
			return c.conductor.Run(ctx, req)
		}
		defer c.sem.Release(1)
	}
	return c.conductor.Run(ctx, req)
}

// StartConversation runs a conversation seeded with userInput and archives
// the result.
func (c *Conductor) StartConversation(ctx context.Context, agentIDs []core.AgentID, userInput string, maxTurns int) (*conductor.Result, error) {
	res, err := c.Run(ctx, conductor.Request{
		AgentIDs:     agentIDs,
		Conversation: core.NewConversation(userInput),
		MaxTurns:     maxTurns,
	})
	if err != nil {
		return nil, err
	}
	if err := c.opts.Store.Save(context.WithoutCancel(ctx), store.NewTranscript(res, agentIDs)); err != nil {
		c.logger.Warn("store.save_failed", "run_id", res.RunID, "error", err.Error())
	}
	return res, nil
}

// Conversation returns an archived transcript.
func (c *Conductor) Conversation(ctx context.Context, id string) (*store.Transcript, error) {
	return c.opts.Store.Get(ctx, id)
}

// Server builds the HTTP surface over this conductor.
func (c *Conductor) Server(optFns ...func(o *server.Options)) *server.Server {
	return server.New(c.agents, c.tools, c, append([]func(o *server.Options){func(o *server.Options) {
		o.Logger = componentLogger(c.logger, "http")
		o.Metrics = c.opts.Metrics
		o.Store = c.opts.Store
		if c.opts.Assistants != nil {
			o.Assistants = c.opts.Assistants
		}
	}}, optFns...)...)
}

// Close releases the transcript store.
func (c *Conductor) Close() error {
	if err := c.opts.Store.Close(); err != nil && !errors.Is(err, store.ErrClosed) {
		return err
	}
	return nil
}

func componentLogger(l logging.Logger, component string) logging.Logger {
	if cl, ok := l.(*logging.ConductorLogger); ok {
		return cl.WithComponent(component)
	}
	return l
}
