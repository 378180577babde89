package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML after merging the config
file, environment overrides, and defaults.

Signing secrets and key hashes are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigRaw()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if file := config.ConfigFileUsed(); file != "" {
			fmt.Fprintf(os.Stderr, "# config file: %s\n", file)
		} else {
			fmt.Fprintln(os.Stderr, "# no config file found, defaults and environment only")
		}

		redactSecrets(cfg)

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

// redactSecrets blanks credential material before rendering.
func redactSecrets(cfg *config.Config) {
	for i := range cfg.Auth.SigningKeys {
		cfg.Auth.SigningKeys[i].Secret = "<redacted>"
	}
	for i := range cfg.Auth.APIKeys {
		cfg.Auth.APIKeys[i].KeyHash = "<redacted>"
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
}
