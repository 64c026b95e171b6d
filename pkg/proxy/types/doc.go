// Package types defines the wire formats of the proxy API: OpenAI-shaped
// chat completion requests, responses, stream chunks and error envelopes,
// plus the Anthropic Messages compatibility shapes.
package types
