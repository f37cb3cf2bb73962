package llm

import (
	"context"
	"sync"
)

// MockCall records one Complete invocation.
type MockCall struct {
	Prompt    string
	MaxTokens int
}

// MockClient is a configurable completion client for testing.
// Queued responses are returned first, in order; after that Response/Error apply.
type MockClient struct {
	mu sync.Mutex

	Response string
	Error    error
	// Handler, when set, computes the reply instead of Response/Error.
	Handler func(ctx context.Context, prompt string) (string, error)

	queue []mockReply

	// Call tracking for assertions
	Calls []MockCall
}

type mockReply struct {
	text string
	err  error
}

func NewMockClient() *MockClient {
	return &MockClient{Response: "[]"}
}

// Enqueue adds a reply returned by a future call.
func (c *MockClient) Enqueue(text string, err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, mockReply{text: text, err: err})
	return c
}

func (c *MockClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, MockCall{Prompt: prompt, MaxTokens: maxTokens})
	handler := c.Handler
	var next *mockReply
	if len(c.queue) > 0 {
		next = &c.queue[0]
		c.queue = c.queue[1:]
	}
	resp, respErr := c.Response, c.Error
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if next != nil {
		return next.text, next.err
	}
	if handler != nil {
		return handler(ctx, prompt)
	}
	return resp, respErr
}

// CallCount returns the number of Complete calls so far.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and queued replies and resets responses to defaults.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = "[]"
	c.Error = nil
	c.Handler = nil
	c.queue = nil
	c.Calls = nil
}
