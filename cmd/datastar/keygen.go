package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/datastar/pkg/encrypt"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signals encryption key",
		Long: `Generate a random key for sealing locked signals.

Put it in signals.encryption_key or DATASTAR_SIGNALS_ENCRYPTION_KEY.
Every server instance sharing sessions needs the same key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := encrypt.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}
