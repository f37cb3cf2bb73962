package main

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/speclens/internal/config"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *store.Migrator) error {
			changed, err := m.Up()
			if err != nil {
				return err
			}
			if !changed {
				fmt.Println("Schema already up to date")
				return nil
			}
			return printVersion(m)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Down(steps); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(printVersion)
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations, clearing the dirty flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Force(version); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

func withMigrator(fn func(m *store.Migrator) error) error {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	m, err := store.NewMigrator(dbURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func printVersion(m *store.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	state := color.New(color.FgGreen).Sprint("clean")
	if dirty {
		state = color.New(color.FgRed).Sprint("dirty")
	}
	fmt.Printf("Schema version %d (%s)\n", version, state)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntP("steps", "n", 1, "Number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
	migrateCmd.AddCommand(migrateForceCmd)
	rootCmd.AddCommand(migrateCmd)
}
