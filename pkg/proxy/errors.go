package proxy

import (
	"errors"
	"fmt"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/proxy/types"
	"zaigate/zaigate/pkg/upstream"
)

// HandleError converts the error taxonomy into OpenAI-compatible error
// responses with appropriate status codes. Account identifiers never leak
// to clients.
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	if errors.Is(err, account.ErrNotAvailable) {
		return types.NewServiceUnavailableError(
			"No accounts are currently available to serve this request.",
		)
	}

	var banErr *upstream.BannedError
	if errors.As(err, &banErr) {
		return types.NewErrorResponse(
			"The upstream service refused the request.",
			types.ErrorTypePermissionDenied,
			"",
			types.CodeUpstreamError,
		)
	}

	var unrecErr *upstream.UnrecoverableError
	if errors.As(err, &unrecErr) {
		return types.NewInvalidRequestError(
			fmt.Sprintf("The upstream service rejected the request: %s", unrecErr.Message),
			"",
			types.CodeInvalidValue,
		)
	}

	var rateErr *upstream.RateLimitError
	if errors.As(err, &rateErr) {
		return types.NewErrorResponse(
			"The upstream service is rate limiting requests. Try again shortly.",
			types.ErrorTypeRateLimitExceeded,
			"",
			types.CodeRateLimitExceeded,
		)
	}

	var authErr *upstream.AuthError
	if errors.As(err, &authErr) {
		// Exposed only when retries are exhausted; the account's token
		// problem is not the client's fault.
		return types.NewBadGatewayError(
			"The upstream service rejected the proxy's credentials.",
		)
	}

	var parseErr *upstream.ParseError
	if errors.As(err, &parseErr) {
		return types.NewBadGatewayError(
			"The upstream service returned an unreadable response.",
		)
	}

	var streamErr *upstream.StreamError
	if errors.As(err, &streamErr) {
		return types.NewBadGatewayError(
			"The upstream stream ended unexpectedly.",
		)
	}

	var unavailErr *upstream.UnavailableError
	if errors.As(err, &unavailErr) {
		return types.NewBadGatewayError(
			"The upstream service is unavailable.",
		)
	}

	return types.NewServerError(
		"An internal error occurred. Please try again later.",
	)
}
