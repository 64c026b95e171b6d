package types

import "fmt"

// ChatCompletionRequest represents an OpenAI-compatible chat completion
// request. Sampling parameters are accepted for client compatibility; the
// upstream service does not expose them and they are not forwarded.
type ChatCompletionRequest struct {
	// Model is the ID of the model to use.
	Model string `json:"model"`

	// Messages is the conversation history as a list of messages.
	Messages []Message `json:"messages"`

	// Stream enables server-sent events (SSE) streaming.
	Stream bool `json:"stream,omitempty"`

	// Temperature controls randomness in the response. Accepted, not
	// forwarded.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate. Accepted,
	// not forwarded.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling. Accepted, not forwarded.
	TopP *float64 `json:"top_p,omitempty"`

	// Stop is a list of stop sequences. Accepted, not forwarded.
	Stop []string `json:"stop,omitempty"`

	// User is a unique identifier for the end-user making the request.
	User string `json:"user,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the author of the message ("system", "user", "assistant").
	Role string `json:"role"`

	// Content is the text content of the message. Either a string or an
	// array of content parts (for multimodal input).
	Content any `json:"content"`

	// Name is the name of the author (optional).
	Name string `json:"name,omitempty"`
}

// ValidationError describes a request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks required fields and basic constraints.
func (r *ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "must contain at least one message"}
	}
	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: "role is required",
			}
		}
		switch msg.Role {
		case "system", "user", "assistant", "tool", "developer":
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", msg.Role),
			}
		}
	}
	return nil
}
