package llm

import (
	"context"
)

// Provider is the core abstraction for LLM interaction. Implementations are
// selected once at construction: a live vendor SDK, the offline responder,
// or a mock.
type Provider interface {
	// Generate sends the conversation and returns the complete reply.
	Generate(ctx context.Context, req Request) (*Response, error)

	// GenerateStream sends the conversation and calls onChunk once per
	// fragment, in generation order. The returned Response.Content is the
	// concatenation of every fragment delivered.
	GenerateStream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// ChunkFunc receives streamed fragments of a reply.
type ChunkFunc func(chunk string)

// Request describes what to send to the LLM.
type Request struct {
	// System is the system instruction. Sets the model's role and constraints.
	System string

	// Messages is the conversation history, oldest first, ending with the
	// user turn being answered.
	Messages []Message

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64

	// UserText is the child's own words for the last user turn, before any
	// lesson framing was wrapped around them. Optional.
	UserText string
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Normalized finish reasons.
const (
	FinishEnd       = "end"
	FinishMaxTokens = "max_tokens"
	FinishSafety    = "safety"
)

// SafetyRating is a vendor safety classification attached to a reply.
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// Response holds the LLM's output.
type Response struct {
	// Content is the generated text.
	Content string

	// SafetyRatings are reported by vendors that classify their output.
	SafetyRatings []SafetyRating

	// FinishReason is one of FinishEnd, FinishMaxTokens, FinishSafety.
	FinishReason string

	// Blocked is set when the vendor refused to answer. Content is then
	// empty or partial and must not be shown.
	Blocked     bool
	BlockReason string

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// LastUserMessage returns the content of the most recent user message.
func (r Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ChildText returns UserText when set, otherwise the last user message.
func (r Request) ChildText() string {
	if r.UserText != "" {
		return r.UserText
	}
	return r.LastUserMessage()
}
