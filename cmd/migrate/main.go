package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/migrate"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var dir string
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the storefront Postgres schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&dir, "dir", migrate.DefaultDir, "goose migrations directory")

	root.AddCommand(
		gooseCmd("up", "Apply every pending migration", &dir),
		gooseCmd("down", "Roll back the latest migration", &dir),
		gooseCmd("status", "Print applied and pending migrations", &dir),
		toCmd(&dir),
		createCmd(&dir),
		validateCmd(&dir),
	)
	return root
}

func gooseCmd(command, short string, dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), command, *dir, func(ctx context.Context, sqlDB *sql.DB) error {
				return migrate.Run(ctx, sqlDB, *dir, command)
			})
		},
	}
}

func toCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a YYYYMMDDHHMMSS version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), "to", *dir, func(ctx context.Context, sqlDB *sql.DB) error {
				return migrate.MigrateToVersion(ctx, sqlDB, *dir, args[0])
			})
		},
	}
}

func createCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Write an empty migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.CreateSQLMigration(*dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			return nil
		},
	}
}

func validateCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check migration names and goose markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrate.ValidateDir(*dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations valid:", *dir)
			return nil
		},
	}
}

// withDatabase opens the configured database for one goose command.
func withDatabase(ctx context.Context, command, dir string, fn func(context.Context, *sql.DB) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DB.Driver == db.DriverSQLite {
		return fmt.Errorf("goose migrations target postgres; sqlite schemas are created from the models on boot")
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": command, "dir": dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, client.Close()) }()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	if err := fn(ctx, sqlDB); err != nil {
		logg.Error(ctx, "migration failed", err)
		return err
	}
	logg.Info(ctx, "migration finished")
	return nil
}
