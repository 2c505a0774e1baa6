package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/cdl-core/internal/infrastructure/config"
	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
	"github.com/nerrad567/cdl-core/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
	Long: `Manage database schema migrations.

Examples:
  cdlcore migrate up      # apply all pending migrations
  cdlcore migrate down    # roll back the most recent migration
  cdlcore migrate status  # list applied and pending migrations`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openFromConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // CLI exit

		if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openFromConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // CLI exit

		rolledBack, err := db.MigrateDown(cmd.Context(), migrations.FS)
		if err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		if rolledBack == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", rolledBack)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openFromConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // CLI exit

		applied, pending, err := db.GetMigrationStatus(cmd.Context(), migrations.FS)
		if err != nil {
			return fmt.Errorf("reading migration status: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, m := range applied {
			fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
		}
		for _, m := range pending {
			fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
		}
		fmt.Fprintf(out, "%d applied, %d pending\n", len(applied), len(pending))
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

// openFromConfig loads the configuration named by --config and opens its
// database without migrating.
func openFromConfig(cmd *cobra.Command) (*database.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return openDatabase(cmd.Context(), cfg)
}
