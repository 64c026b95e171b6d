package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zaigate/zaigate/pkg/cli"
	"zaigate/zaigate/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate the configuration file without starting the server.

Exits non-zero when the file is missing, malformed, or fails validation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return cli.NewConfigError("", err.Error())
		}

		fmt.Printf("✓ %s is valid\n", cfgFile)
		fmt.Printf("  listen address: %s\n", cfg.Server.ListenAddress)
		fmt.Printf("  upstream:       %s\n", cfg.Upstream.BaseURL)
		fmt.Printf("  auth:           %v\n", cfg.Auth.MasterKey != "")
		fmt.Printf("  store:          %s\n", storeDescription(cfg))
		return nil
	},
}

func storeDescription(cfg *config.Config) string {
	if cfg.Store.Path == "" {
		return "in-memory (not durable)"
	}
	return cfg.Store.Path
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
