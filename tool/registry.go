package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
)

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry is a closed name to Tool table. Dispatch is a map lookup; nothing
// is resolved by reflection at call time.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logging.Logger
}

// NewRegistry creates a registry pre-populated with tools.
func NewRegistry(tools []Tool, optFns ...func(o *Options)) (*Registry, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	r := &Registry{tools: make(map[string]Tool), logger: logging.OrNoOp(opts.Logger)}
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools to the table. Empty or duplicate names are rejected and
// nothing from the batch is stored.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]bool, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name()) == "" {
			return core.InvalidInput("tool name is required")
		}
		name := t.Name()
		if _, exists := r.tools[name]; exists || batch[name] {
			return core.InvalidInput(fmt.Sprintf("tool %q already registered", name))
		}
		batch[name] = true
	}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Definitions returns the definitions for the given names, skipping names
// that are not registered. With no names, all tools are described.
func (r *Registry) Definitions(names ...string) []Definition {
	if len(names) == 0 {
		names = r.Names()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			defs = append(defs, DefinitionOf(t))
		}
	}
	return defs
}

// Invoke calls the named tool. Unregistered names fail with UnknownTool.
// A panicking tool is recovered into a *ToolError with code PANIC.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (result string, err error) {
	t, ok := r.Get(name)
	if !ok {
		return "", core.UnknownTool(name)
	}

	start := time.Now()
	r.logger.Debug("tool.call.start", "tool", name)

	defer func() {
		if rec := recover(); rec != nil {
			result = ""
			err = &ToolError{Tool: name, Message: fmt.Sprintf("%v", rec), Code: CodePanic}
		}
		if err != nil {
			r.logger.Error("tool.call.error", "tool", name, "error", err.Error())
			return
		}
		r.logger.Info("tool.call.success", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	}()

	return t.Call(ctx, params)
}
