package types

// AnthropicRequest represents an Anthropic Messages API request, accepted
// for clients such as the Claude CLI that speak that format.
type AnthropicRequest struct {
	// Model is the Anthropic-style model identifier.
	Model string `json:"model"`

	// Messages is the conversation.
	Messages []Message `json:"messages"`

	// System is the optional system prompt.
	System any `json:"system,omitempty"`

	// MaxTokens is required by the Anthropic API. Accepted, not forwarded.
	MaxTokens int `json:"max_tokens"`

	// Stream enables SSE streaming.
	Stream bool `json:"stream,omitempty"`
}

// AnthropicResponse is a buffered Anthropic message object.
type AnthropicResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []AnthropicContentBlock `json:"content"`
	Model        string                  `json:"model"`
	StopReason   string                  `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        AnthropicUsage          `json:"usage"`
}

// AnthropicContentBlock is one content block in a message.
type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicUsage reports estimated token counts.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Anthropic stream event payloads. Each is emitted as
// "event: <type>\ndata: <json>\n\n".

// AnthropicMessageStart opens a streamed message.
type AnthropicMessageStart struct {
	Type    string            `json:"type"`
	Message AnthropicResponse `json:"message"`
}

// AnthropicContentBlockStart opens a content block.
type AnthropicContentBlockStart struct {
	Type         string                `json:"type"`
	Index        int                   `json:"index"`
	ContentBlock AnthropicContentBlock `json:"content_block"`
}

// AnthropicContentBlockDelta carries incremental text.
type AnthropicContentBlockDelta struct {
	Type  string             `json:"type"`
	Index int                `json:"index"`
	Delta AnthropicTextDelta `json:"delta"`
}

// AnthropicTextDelta is the delta payload of a content block delta.
type AnthropicTextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicContentBlockStop closes a content block.
type AnthropicContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// AnthropicMessageDelta carries the final stop reason and usage.
type AnthropicMessageDelta struct {
	Type  string              `json:"type"`
	Delta AnthropicStopDelta  `json:"delta"`
	Usage AnthropicUsageDelta `json:"usage"`
}

// AnthropicStopDelta is the delta payload of a message delta.
type AnthropicStopDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// AnthropicUsageDelta reports output tokens in a message delta.
type AnthropicUsageDelta struct {
	OutputTokens int `json:"output_tokens"`
}

// AnthropicMessageStop closes a streamed message.
type AnthropicMessageStop struct {
	Type string `json:"type"`
}
