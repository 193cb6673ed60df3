package agent

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
)

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
	// Now overrides the clock used for CreatedAt. Tests only.
	Now func() time.Time
}

// Registry stores agents keyed by id.
//
// Ids come from an atomic counter starting at 1 and are never reused within
// the lifetime of the registry. Reads run concurrently; mutations are
// serialized behind the write lock.
type Registry struct {
	mu     sync.RWMutex
	agents map[core.AgentID]*core.Agent
	nextID atomic.Int64
	logger logging.Logger
	now    func() time.Time
}

// NewRegistry constructs an empty Registry.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		agents: make(map[core.AgentID]*core.Agent),
		logger: logging.OrNoOp(opts.Logger),
		now:    opts.Now,
	}
}

// Register creates a new agent with an empty tool set and returns a copy of it.
func (r *Registry) Register(name, model, instructions string) (core.Agent, error) {
	if strings.TrimSpace(name) == "" {
		return core.Agent{}, core.InvalidInput("agent name is required")
	}
	if strings.TrimSpace(model) == "" {
		return core.Agent{}, core.InvalidInput("agent model is required")
	}

	a := &core.Agent{
		ID:           core.AgentID(r.nextID.Add(1)),
		Name:         name,
		Model:        model,
		Instructions: instructions,
		Tools:        []string{},
		CreatedAt:    r.now().UTC(),
	}

	r.mu.Lock()
	r.agents[a.ID] = a
	r.mu.Unlock()

	r.logger.Info("agent.registered", "agent_id", a.ID, "name", name, "model", model)
	return a.Clone(), nil
}

// AttachTool grants the agent permission to call toolName.
// Attaching a tool twice fails with DuplicateTool and leaves the set unchanged.
func (r *Registry) AttachTool(id core.AgentID, toolName string) (core.Agent, error) {
	if strings.TrimSpace(toolName) == "" {
		return core.Agent{}, core.InvalidInput("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return core.Agent{}, core.NotFound(id)
	}
	if a.HasTool(toolName) {
		return core.Agent{}, core.DuplicateTool(id, toolName)
	}
	a.Tools = append(a.Tools, toolName)

	r.logger.Info("agent.tool_attached", "agent_id", id, "tool", toolName)
	return a.Clone(), nil
}

// Get returns a copy of the agent with the given id.
func (r *Registry) Get(id core.AgentID) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return core.Agent{}, false
	}
	return a.Clone(), true
}

// List returns copies of all agents ordered by id.
func (r *Registry) List() []core.Agent {
	r.mu.RLock()
	out := make([]core.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
