// Package cmd provides the CLI commands for the assistant gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "assistant-gateway",
	Short: "Assistant Gateway - request security gateway",
	Long: `Assistant Gateway is a security gateway for AI assistant APIs.

Every request passes through threat scoring, authentication, and rate
limiting before reaching the protected application. Rejections are
audited; responses carry a fixed set of security headers.

Quick start:
  1. Create a config file: assistant-gateway.yaml
  2. Run: assistant-gateway start

Configuration:
  Config is loaded from assistant-gateway.yaml in the current directory,
  $HOME/.assistant-gateway/, or /etc/assistant-gateway/.

  Environment variables can override config values with the
  ASSISTANT_GATEWAY_ prefix.
  Example: ASSISTANT_GATEWAY_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gateway server
  config      Print the effective configuration
  hash-key    Generate a hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./assistant-gateway.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
