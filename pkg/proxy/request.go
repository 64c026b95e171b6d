package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"zaigate/zaigate/pkg/proxy/types"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024
)

// RequestError represents a request parsing or validation error. It maps
// to a 400 response; the request never reached account selection.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to an OpenAI-compatible error
// response.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}

// ParseChatCompletionRequest parses an HTTP request body into a
// ChatCompletionRequest, enforcing the body size limit and validating
// required fields.
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	if err := req.Validate(); err != nil {
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			return nil, &RequestError{
				Message: valErr.Message,
				Code:    types.CodeInvalidValue,
				Param:   valErr.Field,
			}
		}
		return nil, err
	}

	return &req, nil
}

// ParseAnthropicRequest parses an Anthropic Messages API request body.
func ParseAnthropicRequest(r *http.Request) (*types.AnthropicRequest, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}

	var req types.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	if len(req.Messages) == 0 {
		return nil, &RequestError{
			Message: "messages must contain at least one message",
			Code:    types.CodeInvalidValue,
			Param:   "messages",
		}
	}

	return &req, nil
}

func readBody(r *http.Request) ([]byte, error) {
	// Read one byte past the limit so a truncated body is distinguishable
	// from one that is exactly at it.
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > MaxRequestBodySize {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
		}
	}
	return body, nil
}
