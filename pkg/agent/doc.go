// Package agent builds model endpoints for the assistant.
//
// The package is the public entry point for the model side of a run:
//   - NewClient selects the endpoint implementation for a configured model and wraps it
//     in the metrics, logging and empty-response middlewares
//   - MockLLMClient replays a scripted conversation for tests
//
// Endpoint implementations live under internal/llmimpl and are reachable only through NewClient.
// The orchestration loop that drives an endpoint lives in the toolloop subpackage.
package agent
