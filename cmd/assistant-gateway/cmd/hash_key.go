package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
)

var hashKeyArgon2id bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate a hash for an API key",
	Long: `Generate a hash of an API key for use in config.

By default the output is "sha256:<hex>", directly usable in the
auth.api_keys.key_hash field. With --argon2id the output is an argon2id
PHC string, which is slower to verify but resistant to offline attacks.

Example:
  assistant-gateway hash-key "my-secret-api-key"
  # Output: sha256:7d5e8c...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  assistant-gateway hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if hashKeyArgon2id {
			hash, err := auth.HashKeyArgon2id(key)
			if err != nil {
				return fmt.Errorf("failed to hash key: %w", err)
			}
			fmt.Println(hash)
			return nil
		}
		fmt.Printf("sha256:%s\n", auth.HashKey(key))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeyArgon2id, "argon2id", false, "Use argon2id instead of SHA-256")
	rootCmd.AddCommand(hashKeyCmd)
}
