package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"credd/cmd/identity"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential schema",
	}
	cmd.PersistentFlags().String("db.url", "", "postgres URL (default from config or CREDD_DATABASE_URL)")

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops credentials)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all credentials; pass --yes to confirm")
			}
			return withMigrator(cmd, opts, func(m *identity.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, opts, func(m *identity.Migrator) error {
					fmt.Fprintln(cmd.OutOrStdout(), "Running migrations...")
					if err := m.Up(); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed successfully")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, opts, func(m *identity.Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(cmd *cobra.Command, opts *rootOptions, fn func(*identity.Migrator) error) error {
	cfg, err := opts.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.DB.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("a database URL is required (--db.url or CREDD_DATABASE_URL)")
	}

	m, err := identity.NewMigrator(cfg.DB.URL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return fn(m)
}
