// ZaiGate is an OpenAI-compatible API gateway for the Zai.is chat
// service.
//
// It exposes /v1/chat/completions, /v1/models and an Anthropic-style
// /v1/messages endpoint, and serves them from a pool of Zai.is accounts
// with automatic token refresh, failure rotation and per-request
// logging.
//
// Usage:
//
//	# Start the gateway with the default configuration file
//	zaigate run
//
//	# Start with a custom configuration file
//	zaigate run --config /etc/zaigate/config.yaml
//
//	# Validate a configuration file without starting
//	zaigate validate --config config.yaml
//
//	# Show version information
//	zaigate version
package main

func main() {
	Execute()
}
