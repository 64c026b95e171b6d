package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"zaigate/zaigate/pkg/proxy/types"
)

// estimateTokens approximates a token count from character length. The
// upstream reports no usage, so clients get a rough but non-zero figure.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// NewCompletionResponse builds a buffered OpenAI completion response from
// collected content.
func NewCompletionResponse(responseID, model, content string, promptTokens int) *types.ChatCompletionResponse {
	completionTokens := estimateTokens(content)
	return &types.ChatCompletionResponse{
		ID:      responseID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.Choice{
			{
				Index: 0,
				Message: types.Message{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: types.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

// NewStreamChunk builds one OpenAI stream chunk carrying incremental
// content. The first chunk carries the assistant role.
func NewStreamChunk(responseID, model, content string, first bool) *types.ChatCompletionStreamChunk {
	delta := types.Delta{Content: content}
	if first {
		delta.Role = "assistant"
	}
	return &types.ChatCompletionStreamChunk{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.StreamChoice{
			{Index: 0, Delta: delta},
		},
	}
}

// NewFinalStreamChunk builds the terminating chunk with a finish reason
// and no content.
func NewFinalStreamChunk(responseID, model, finishReason string) *types.ChatCompletionStreamChunk {
	return &types.ChatCompletionStreamChunk{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.StreamChoice{
			{Index: 0, Delta: types.Delta{}, FinishReason: &finishReason},
		},
	}
}

// WriteJSONResponse writes a JSON response with the given status code.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an OpenAI-compatible error response, deriving
// the HTTP status from the error type.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetSSEHeaders sets the headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEChunk writes a single data frame and flushes it.
func WriteSSEChunk(w http.ResponseWriter, chunk any) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE chunk: %w", err)
	}
	flush(w)
	return nil
}

// WriteSSEEvent writes a named event frame (Anthropic-style SSE) and
// flushes it.
func WriteSSEEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	flush(w)
	return nil
}

// WriteSSEDone writes the final "[DONE]" marker for OpenAI SSE streams.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE done marker: %w", err)
	}
	flush(w)
	return nil
}

// WriteSSEError writes an error envelope as a terminal SSE data frame, for
// failures after streaming has begun.
func WriteSSEError(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	data, err := json.Marshal(errResp)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE error: %w", err)
	}
	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
