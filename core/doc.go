// Package core provides the foundational domain types shared by every other
// package in agentconductor. It defines:
//
//   - Agents (named model + instructions + tool set configurations)
//   - Messages and Conversations (the append-only run transcript)
//   - Tool calls (the provider-neutral function call request shape)
//   - Run status values and the error taxonomy used across the module
//
// The package intentionally keeps behaviour out of scope: registries, the
// conductor loop, providers and transports live in their own packages and
// exchange only the values declared here.
package core
