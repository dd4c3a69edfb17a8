package main

import (
	"fmt"

	"github.com/Morditux/vizsession"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Print a new secret key",
	Long:  `Print a random key suitable for BOKEH_SECRET_KEY when session signing is enabled.`,
	Args:  cobra.NoArgs,
	RunE:  runSecret,
}

func init() {
	rootCmd.AddCommand(secretCmd)
}

func runSecret(cmd *cobra.Command, args []string) error {
	key, err := vizsession.GenerateSecretKey()
	if err != nil {
		return fmt.Errorf("failed to generate secret key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}
