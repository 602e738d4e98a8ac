package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brandvis/mentionoor/pkg/secrets"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an encryption key",
	Long: `Generate a fresh encryption key for provider API keys at rest.
Set the output as encryption.key in the config file or via
MENTIONOOR_ENCRYPTION_KEY.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateKey()
		if err != nil {
			return fmt.Errorf("generating key: %w", err)
		}

		fmt.Println(key)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
