// Package middleware provides the HTTP middleware chain for the proxy:
// request IDs, panic recovery, access logging, CORS and inbound rate
// limiting.
package middleware
