// Package llm defines the completion-service boundary used for answer
// synthesis.
package llm

import "context"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full input to a completion call.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// RequestOptions carries optional sampling parameters.
type RequestOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// ChunkReader yields incremental completion text. Recv returns io.EOF after
// the last chunk.
type ChunkReader interface {
	Recv() (string, error)
	Close() error
}

// Completer is implemented by every completion provider.
type Completer interface {
	// Name returns the provider identifier.
	Name() string
	// Complete performs one blocking completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (string, error)
	// Stream starts one streaming completion.
	Stream(ctx context.Context, prompt *Prompt, opts *RequestOptions) (ChunkReader, error)
}
