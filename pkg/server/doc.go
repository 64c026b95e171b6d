// Package server assembles the HTTP surface of the gateway: the
// OpenAI-compatible v1 endpoints, the Anthropic compatibility endpoint,
// the admin API, health probes and metrics exposition, wrapped in the
// middleware chain and managed through graceful start/shutdown.
package server
