package types

// ChatCompletionResponse represents an OpenAI-compatible chat completion
// response, returned for non-streaming requests.
type ChatCompletionResponse struct {
	// ID is a unique identifier for the chat completion.
	ID string `json:"id"`

	// Object is always "chat.completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the completion was created.
	Created int64 `json:"created"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices is a list of completion choices (always exactly one).
	Choices []Choice `json:"choices"`

	// Usage contains token usage statistics.
	Usage Usage `json:"usage"`
}

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of this choice.
	Index int `json:"index"`

	// Message is the generated message.
	Message Message `json:"message"`

	// FinishReason explains why the model stopped generating tokens.
	FinishReason string `json:"finish_reason"`
}

// Usage contains token usage statistics. The upstream reports none, so
// counts are estimated from content length.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionStreamChunk represents a chunk in a streaming response,
// sent as Server-Sent Events when stream=true.
type ChatCompletionStreamChunk struct {
	// ID is a unique identifier shared by all chunks of one completion.
	ID string `json:"id"`

	// Object is always "chat.completion.chunk".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the chunk was created.
	Created int64 `json:"created"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices is a list of streaming choices.
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice represents a single choice in a streaming response.
type StreamChoice struct {
	// Index is the index of this choice.
	Index int `json:"index"`

	// Delta contains incremental content.
	Delta Delta `json:"delta"`

	// FinishReason is set only in the final chunk.
	FinishReason *string `json:"finish_reason"`
}

// Delta contains incremental content in a streaming response.
type Delta struct {
	// Role is the role of the message author (only in the first chunk).
	Role string `json:"role,omitempty"`

	// Content is the incremental text content.
	Content string `json:"content,omitempty"`
}

// ModelList is the OpenAI-compatible model listing response.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelInfo is one entry in the model listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Name    string `json:"name,omitempty"`
}
