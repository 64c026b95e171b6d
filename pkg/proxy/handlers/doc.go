// Package handlers contains the HTTP handlers of the proxy API: the
// OpenAI-compatible chat completions and model listing endpoints, the
// Anthropic Messages compatibility endpoint, and the account
// administration API.
package handlers
