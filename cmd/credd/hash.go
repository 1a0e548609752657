package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"credd/cmd/security/password"
)

// NewHashCmd creates the hash subcommand.
func NewHashCmd(opts *rootOptions) *cobra.Command {
	var skipPolicy bool
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash a secret read from stdin",
		Long: `Read one line from stdin and print its Argon2id digest using the
configured cost. Intended for operators seeding records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			sc := bufio.NewScanner(cmd.InOrStdin())
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return oops.Code("INPUT_MISSING").Errorf("no secret on stdin")
			}
			secret := strings.TrimRight(sc.Text(), "\r")

			if password.IsDigest(secret) {
				return oops.Code("INPUT_INVALID").Errorf("input is already a digest")
			}
			check := cfg.Password.Validate
			if skipPolicy {
				check = cfg.Password.CheckLength
			}
			if err := check(secret); err != nil {
				return err
			}

			digest, err := cfg.Password.Hash(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "only enforce length bounds")
	return cmd
}
