package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "zaigate",
	Short: "ZaiGate - OpenAI-compatible gateway for Zai.is",
	Long: `ZaiGate is an API gateway that exposes the Zai.is chat service through
OpenAI-compatible endpoints.

It manages a pool of Zai.is accounts, rotating between them per request,
refreshing session tokens before they expire, and retrying failed requests
on a different account. Clients talk to it the way they would talk to the
OpenAI or Anthropic APIs:

  - POST /v1/chat/completions  (streaming and buffered)
  - GET  /v1/models
  - POST /v1/messages          (Anthropic Messages compatibility)

Accounts are administered at runtime through the /api endpoints.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
