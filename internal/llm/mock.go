package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Content string
	// Chunks overrides how Content is streamed. When empty, Content is
	// split after each space.
	Chunks      []string
	Blocked     bool
	BlockReason string
	Usage       Usage
	Err         error
	// Delay simulates a slow vendor and honors context cancellation.
	Delay time.Duration
	// Panic makes the call panic with this value.
	Panic any
}

// MockProvider is a deterministic Provider for testing.
// It returns canned responses in FIFO order and records all requests.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Generate returns the next canned response or ErrProviderUnavailable if
// the queue is empty.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.next(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.response(), nil
}

func (m *MockProvider) GenerateStream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	resp, err := m.next(ctx, req)
	if err != nil {
		return nil, err
	}
	out := resp.response()
	if resp.Blocked {
		return out, nil
	}

	chunks := resp.Chunks
	if len(chunks) == 0 && resp.Content != "" {
		chunks = strings.SplitAfter(resp.Content, " ")
	}
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c)
		onChunk(c)
	}
	out.Content = b.String()
	return out, nil
}

func (m *MockProvider) next(ctx context.Context, req Request) (MockResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return MockResponse{}, &ErrProviderUnavailable{}
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-ctx.Done():
			return MockResponse{}, ctx.Err()
		case <-time.After(resp.Delay):
		}
	}
	if resp.Panic != nil {
		panic(resp.Panic)
	}
	if resp.Err != nil {
		return MockResponse{}, resp.Err
	}
	return resp, nil
}

func (r MockResponse) response() *Response {
	out := &Response{
		Content:      r.Content,
		Usage:        r.Usage,
		Model:        "mock",
		FinishReason: FinishEnd,
	}
	if r.Blocked {
		out.Content = ""
		out.Blocked = true
		out.BlockReason = r.BlockReason
		out.FinishReason = FinishSafety
	}
	return out
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// AddResponse appends a canned response to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastRequest returns the most recent request, or the zero Request.
func (m *MockProvider) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}
	}
	return m.Calls[len(m.Calls)-1]
}
