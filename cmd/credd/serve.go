package main

import (
	"github.com/spf13/cobra"

	"credd/cmd/internal/app"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Run the credential HTTP API until interrupted. Without a database URL the in-memory store is used.
SIGHUP re-reads the config and applies its token keys.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			reload := func() (app.Config, error) { return opts.loadConfig(cmd.Flags()) }
			return app.Serve(cfg, app.NewLogger(cfg.Log), reload)
		},
	}
	app.BindFlags(cmd.Flags())
	return cmd
}
