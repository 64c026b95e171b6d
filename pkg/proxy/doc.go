// Package proxy translates OpenAI-compatible chat requests into
// upstream calls, picking accounts from the pool and retrying across
// accounts on recoverable failures.
package proxy
