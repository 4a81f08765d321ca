package agent

import (
	"context"
	"fmt"
	"sync"

	"boxonomics/pkg/agent/llm"
)

// MockStep is one scripted model turn.
type MockStep struct {
	// Hook runs before the step is returned. Tests use it to cancel a run mid-flight.
	Hook     func(ctx context.Context, req llm.CompletionRequest)
	Err      error
	Response llm.CompletionResponse
}

// MockText scripts a final answer.
func MockText(content string) MockStep {
	return MockStep{Response: llm.CompletionResponse{Content: content, StopReason: "end_turn"}}
}

// MockToolCalls scripts a turn that requests tools.
func MockToolCalls(content string, calls ...llm.ToolCall) MockStep {
	return MockStep{Response: llm.CompletionResponse{Content: content, ToolCalls: calls, StopReason: "tool_use"}}
}

// MockError scripts a failed model call.
func MockError(err error) MockStep {
	return MockStep{Err: err}
}

// MockLLMClient replays a script of model turns and records every request it receives.
type MockLLMClient struct {
	model    string
	steps    []MockStep
	requests []llm.CompletionRequest
	next     int
	mu       sync.Mutex
}

// NewMockLLMClient creates a mock that returns steps in order.
func NewMockLLMClient(steps ...MockStep) *MockLLMClient {
	return &MockLLMClient{model: "mock-model", steps: steps}
}

// Complete returns the next scripted step. An exhausted script is an error.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	snapshot := req
	snapshot.Messages = append([]llm.CompletionMessage(nil), req.Messages...)
	m.requests = append(m.requests, snapshot)
	if m.next >= len(m.steps) {
		m.mu.Unlock()
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses (script has %d)", len(m.steps))
	}
	step := m.steps[m.next]
	m.next++
	m.mu.Unlock()

	if step.Hook != nil {
		step.Hook(ctx, req)
	}
	if step.Err != nil {
		return llm.CompletionResponse{}, step.Err
	}
	return step.Response, nil
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.model
}

// Requests returns a copy of the requests received so far.
func (m *MockLLMClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.CompletionRequest(nil), m.requests...)
}

// Calls returns how many times Complete was called.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
