package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentSeed describes an agent registered at startup.
type AgentSeed struct {
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	Instructions string   `yaml:"instructions"`
	Tools        []string `yaml:"tools"`
}

type agentsFile struct {
	Agents []AgentSeed `yaml:"agents"`
}

// LoadAgents reads an agent seed file:
//
//	agents:
//	  - name: researcher
//	    model: gpt-4o-mini
//	    instructions: Find facts.
//	    tools: [add]
func LoadAgents(path string) ([]AgentSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agents file: %w", err)
	}
	seeds, err := ParseAgents(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seeds, nil
}

// ParseAgents decodes and validates seed YAML. Unknown keys are rejected.
func ParseAgents(data []byte) ([]AgentSeed, error) {
	var f agentsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing agents: %w", err)
	}

	var errs []error
	for i, a := range f.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
		}
		if a.Model == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: model is required", i))
		}
		seen := map[string]bool{}
		for _, t := range a.Tools {
			if seen[t] {
				errs = append(errs, fmt.Errorf("agents[%d]: tool %q listed twice", i, t))
			}
			seen[t] = true
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Agents, nil
}
