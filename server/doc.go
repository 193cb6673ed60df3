// Package server exposes the agent registry, tool registry and conductor over
// HTTP/JSON.
//
// Routes:
//
//	POST /create-agent        {name, model, instructions}
//	POST /add-tool            {agentId, toolName}
//	GET  /agents
//	GET  /tools
//	POST /start-conversation  {agentIds, userInput, maxTurns, stopWhenIdle}
//	GET  /conversations
//	GET  /conversations/{id}
//	GET  /health
//	GET  /metrics
//
// Errors are returned as {"error": "..."} with the status chosen by StatusFor.
package server
