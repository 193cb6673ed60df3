package agent

import (
	"strings"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/internal/util"
)

// DefaultInstruction is used for agents registered without instructions.
const DefaultInstruction = "You are a helpful agent."

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(core.Agent) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(core.Agent) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(a core.Agent) (string, error) { return f(a) }

// Instruction represents either a static instruction string, a template or a
// dynamic provider.
type Instruction struct {
	text     string
	template bool
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate creates an Instruction whose text is expanded
// against the agent on every Resolve. Placeholders: {{.name}}, {{.model}},
// {{.id}} and {{.tools}}.
func NewInstructionFromTemplate(text string) Instruction {
	return Instruction{text: text, template: true}
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(core.Agent) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text for a, invoking the provider if needed.
// Static and provider text is returned unchanged; only template instructions
// are expanded. Blank results fall back to DefaultInstruction.
func (i Instruction) Resolve(a core.Agent) (string, error) {
	text := i.text
	if i.provider != nil {
		t, err := i.provider.Instruction(a)
		if err != nil {
			return "", err
		}
		text = t
	}
	if strings.TrimSpace(text) == "" {
		return DefaultInstruction, nil
	}
	if !i.template {
		return text, nil
	}
	return util.RenderTemplate(text, map[string]any{
		"id":    int64(a.ID),
		"name":  a.Name,
		"model": a.Model,
		"tools": a.Tools,
	})
}

// InstructionFor returns the instruction an agent was registered with, sent
// verbatim.
func InstructionFor(a core.Agent) Instruction { return NewInstructionFromText(a.Instructions) }
