package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"credd/cmd/internal/app"
)

type rootOptions struct {
	configFile string
}

// NewRootCmd creates the root command for the credd CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "credd",
		Short: "credd - credential lifecycle service",
		Long: `credd registers identities, verifies secrets with Argon2id and issues
short-lived signed access tokens over a small HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file path")

	cmd.AddCommand(NewServeCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewHashCmd(opts))

	return cmd
}

// loadConfig layers the config file, environment and the command's flags.
func (o *rootOptions) loadConfig(fs *pflag.FlagSet) (app.Config, error) {
	return app.Load(o.configFile, fs)
}
