package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

const stepsFlag = "steps"

var downFlags = map[string]cobraflags.Flag{
	stepsFlag: &cobraflags.StringFlag{
		Name:  stepsFlag,
		Value: "",
		Usage: "Number of migrations to roll back (default: all)",
	},
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back Postgres migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd, false) },
	}
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd, true) },
	}
	cobraflags.RegisterMap(downCmd, downFlags)

	migrateCmd.AddCommand(upCmd, downCmd)
	return migrateCmd
}

func runMigrate(cmd *cobra.Command, down bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	m, err := newMigrator(db, cfg.Database.MigrationsDir)
	if err != nil {
		return err
	}

	switch {
	case !down:
		err = m.Up()
	case downFlags[stepsFlag].GetString() == "":
		err = m.Down()
	default:
		steps, convErr := strconv.Atoi(downFlags[stepsFlag].GetString())
		if convErr != nil || steps <= 0 {
			return fmt.Errorf("--%s must be a positive number", stepsFlag)
		}
		err = m.Steps(-steps)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("migrations rolled back", "version", "none")
	case err != nil:
		return fmt.Errorf("failed to read migration version: %w", err)
	default:
		slog.Info("migrations done", "version", version, "dirty", dirty)
	}
	return nil
}
