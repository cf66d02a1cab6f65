package llm

import (
	"context"
	"slices"
	"sync"

	"github.com/Harshitk-cp/verdict/internal/domain"
)

const mockResponse = "Both sides make a fair point, but the receipts favour Side A.\nVERDICT: A"

// MockClient is a configurable oracle for tests and local runs. It is safe
// for concurrent use.
type MockClient struct {
	mu sync.Mutex

	// Response is returned when Error is nil and Respond is unset.
	Response string
	Error    error
	// Respond, when set, computes the reply from the messages.
	Respond func(ctx context.Context, messages []domain.Message) (string, error)

	calls [][]domain.Message
}

func NewMockClient() *MockClient {
	return &MockClient{Response: mockResponse}
}

func (c *MockClient) Adjudicate(ctx context.Context, messages []domain.Message) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, slices.Clone(messages))
	respond, resp, err := c.Respond, c.Response, c.Error
	c.mu.Unlock()

	if respond != nil {
		return respond(ctx, messages)
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

// SetResponse changes the canned reply and clears any configured error.
func (c *MockClient) SetResponse(resp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = resp
	c.Error = nil
}

// SetError makes every later call fail with err.
func (c *MockClient) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Error = err
}

// Calls returns a copy of the message lists received so far.
func (c *MockClient) Calls() [][]domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Reset clears recorded calls and restores the default reply.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = mockResponse
	c.Error = nil
	c.Respond = nil
	c.calls = nil
}
