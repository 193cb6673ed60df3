// Package conductor runs multi-agent round-robin conversations.
//
// A run cycles through an ordered list of agent ids. On every turn the
// speaking agent's instructions are prepended as a system message to the
// full transcript, the completion provider produces the next assistant
// message, and any tool calls in that message are dispatched through the
// tool registry. The transcript is append-only: each turn adds exactly one
// assistant message followed by its tool results and notices.
//
// A run ends when the turn budget is spent (completed), when an agent id
// cannot be resolved (stoppedMissingAgent), when an agent answers without
// tool calls and the idle policy is on (stoppedNoFurtherAction), or when the
// caller's context is done (cancelled). A failing provider call aborts the
// run with a *core.ProviderError.
package conductor
