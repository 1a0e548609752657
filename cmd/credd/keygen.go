package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"credd/cmd/security/token"
)

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Long: `Generate a random 32-byte signing key and print it as kid:hex.

Prepend the output to CREDD_TOKEN_KEYS to rotate: the first key signs and
the rest stay accepted until removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := token.Generate(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "k1", "key id (kid header value)")
	return cmd
}
