package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SubFox/internal/pkg/database"
	"github.com/ManuelReschke/SubFox/internal/pkg/env"
)

var migrationsDir = "migrations"

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "dir", migrationsDir, "directory holding the SQL migrations")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
			err := m.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				cmd.Println("No changes: database is up to date")
				return nil
			}
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			cmd.Println("Migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
			if err := m.Steps(-1); err != nil {
				return fmt.Errorf("roll back: %w", err)
			}
			cmd.Println("Last migration rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "goto VERSION",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			err = m.Migrate(uint(version))
			if errors.Is(err, migrate.ErrNoChange) {
				cmd.Printf("No changes: database is already at version %d\n", version)
				return nil
			}
			if err != nil {
				return fmt.Errorf("migrate to version %d: %w", version, err)
			}
			cmd.Printf("Migrated to version %d\n", version)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("No migrations applied yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read version: %w", err)
			}
			if dirty {
				cmd.Printf("Current version: %d (dirty)\n", version)
				return nil
			}
			cmd.Printf("Current version: %d\n", version)
			return nil
		}),
	})

	return cmd
}

// withMigrator opens the migrator for the duration of one command.
func withMigrator(run func(cmd *cobra.Command, m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cmd.Printf("Connecting to database: %s@%s:%s/%s\n",
			env.GetEnv("DB_USER", "subfox"),
			env.GetEnv("DB_HOST", "db"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", "subfox_db"),
		)

		m, err := database.NewMigrator(migrationsDir)
		if err != nil {
			return err
		}
		defer func() {
			if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
				cmd.PrintErrf("closing migrations: %v, %v\n", sourceErr, dbErr)
			}
		}()
		return run(cmd, m, args)
	}
}
