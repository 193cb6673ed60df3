// Package agent holds the agent registry: the process-wide table of named,
// model-bound agents that the conductor cycles through.
//
// Agents are plain values (core.Agent). The Registry allocates their ids,
// owns their tool sets and hands out copies so callers can never mutate
// registry state behind its lock. Instructions resolve to a default text when
// an agent was registered without one.
package agent
