package testutil

import (
	"testing"

	"github.com/hupe1980/agentconductor/agent"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/tool"
)

// Fixture bundles fresh registries for a test. The tool registry holds the
// built-in tools.
type Fixture struct {
	t      testing.TB
	Agents *agent.Registry
	Tools  *tool.Registry
}

// NewFixture creates isolated registries.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	tools, err := tool.NewRegistry(tool.Builtins())
	if err != nil {
		t.Fatalf("tool registry: %v", err)
	}
	return &Fixture{t: t, Agents: agent.NewRegistry(), Tools: tools}
}

// Agent registers an agent and fails the test on error.
func (f *Fixture) Agent(name, modelID, instructions string, tools ...string) core.Agent {
	f.t.Helper()
	a, err := f.Agents.Register(name, modelID, instructions)
	if err != nil {
		f.t.Fatalf("register %s: %v", name, err)
	}
	for _, tl := range tools {
		if a, err = f.Agents.AttachTool(a.ID, tl); err != nil {
			f.t.Fatalf("attach %s to %s: %v", tl, name, err)
		}
	}
	return a
}
