// Package llm is the boundary to the external text completion service.
// Agents build a Request, the configured Completer returns generated text,
// and the content is treated as opaque by everything upstream.
package llm

import (
	"context"
	"errors"
)

// MessageRole is the speaker of one completion message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry of the completion conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Request is a single completion call.
// Zero Temperature, MaxTokens or Model fall back to the provider defaults.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Model       string    `json:"model,omitempty"`
}

// Response carries the generated text.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// Completer is implemented by every completion provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

var (
	// ErrUnavailable is returned when no provider is configured.
	ErrUnavailable = errors.New("completion service unavailable")

	// ErrEmptyResponse is returned when the provider produced no text.
	ErrEmptyResponse = errors.New("completion service returned no content")
)

// System builds a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Disabled is the Completer used when no provider is configured. Every call
// fails with ErrUnavailable so agents take their fallback path.
type Disabled struct{}

func (Disabled) Complete(context.Context, Request) (*Response, error) {
	return nil, ErrUnavailable
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
