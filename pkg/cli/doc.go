// Package cli holds the small shared pieces of the zaigate command:
// typed errors for config and subcommand failures, and the signal-aware
// run context used for graceful shutdown.
package cli
