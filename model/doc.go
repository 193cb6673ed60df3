// Package model defines the completion provider abstraction used by the
// conductor, plus the routing, retry, rate limit and logging decorators that
// wrap concrete providers.
//
// Subpackages adapt the official vendor SDKs:
//
//   - model/openai    (github.com/openai/openai-go)
//   - model/anthropic (github.com/anthropics/anthropic-sdk-go)
//   - model/gemini    (google.golang.org/genai)
//
// A Provider receives the full transcript on every call; it never keeps
// conversation state of its own.
package model
