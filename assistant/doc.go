// Package assistant drives hosted assistants: a named assistant with fixed
// instructions, threads that hold its conversation, and runs that make the
// assistant answer a thread.
//
// A Service talks to a Backend. The OpenAI Assistants API backend lives in
// model/openai; LocalBackend serves the same lifecycle in process on top of
// any model.Provider, which keeps the feature usable offline and in tests.
// Runs are asynchronous on every backend, so Service.Run polls the run until
// it reaches a terminal status or the caller's context ends.
package assistant
