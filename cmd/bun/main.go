package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	rafflequeue "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/queue"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/database"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/observability"
	"github.com/Black-And-White-Club/raffle-bot/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"

	// Import for migrator creation
	rafflemigrations "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories/migrations"
)

func main() {
	cliApp := &cli.App{
		Name:  "bun",
		Usage: "raffle database tooling",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			newDBCommand(),
			newRiverCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withMigrators opens the configured database and hands fn one migrator per module.
func withMigrators(c *cli.Context, fn func(map[string]*migrate.Migrator) error) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(c.Context, database.Config{Driver: cfg.Storage.Driver, DSN: cfg.DatabaseDSN()})
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(map[string]*migrate.Migrator{
		"raffle": migrate.NewMigrator(db, rafflemigrations.Migrations),
	})
}

func newDBCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							fmt.Printf("Initializing migrations for module: %s\n", moduleName)
							if err := migrator.Init(c.Context); err != nil {
								return fmt.Errorf("init %s: %w", moduleName, err)
							}
						}
						return nil
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "migrate database",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							group, err := migrator.Migrate(c.Context)
							if err != nil {
								return fmt.Errorf("migrate %s: %w", moduleName, err)
							}
							if group.IsZero() {
								fmt.Printf("No new migrations to run for module: %s\n", moduleName)
							} else {
								fmt.Printf("Migrated module: %s to %s\n", moduleName, group)
							}
						}
						return nil
					})
				},
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							group, err := migrator.Rollback(c.Context)
							if err != nil {
								return fmt.Errorf("rollback %s: %w", moduleName, err)
							}
							if group.IsZero() {
								fmt.Printf("No groups to roll back for module: %s\n", moduleName)
							} else {
								fmt.Printf("Rolled back module: %s to %s\n", moduleName, group)
							}
						}
						return nil
					})
				},
			},
			{
				Name:      "create_go",
				Usage:     "create Go migration",
				ArgsUsage: "<module> <name...>",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators map[string]*migrate.Migrator) error {
						moduleName := c.Args().First()
						migrator, ok := migrators[moduleName]
						if !ok {
							return fmt.Errorf("invalid module name: %s", moduleName)
						}
						mf, err := migrator.CreateGoMigration(c.Context, strings.Join(c.Args().Tail(), "_"))
						if err != nil {
							return err
						}
						fmt.Printf("Created migration for module %s: %s (%s)\n", moduleName, mf.Name, mf.Path)
						return nil
					})
				},
			},
			{
				Name:      "create_sql",
				Usage:     "create up and down SQL migrations",
				ArgsUsage: "<module> <name...>",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators map[string]*migrate.Migrator) error {
						moduleName := c.Args().First()
						migrator, ok := migrators[moduleName]
						if !ok {
							return fmt.Errorf("invalid module name: %s", moduleName)
						}
						files, err := migrator.CreateSQLMigrations(c.Context, strings.Join(c.Args().Tail(), "_"))
						if err != nil {
							return err
						}
						for _, mf := range files {
							fmt.Printf("Created migration for module %s: %s (%s)\n", moduleName, mf.Name, mf.Path)
						}
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators map[string]*migrate.Migrator) error {
						for moduleName, migrator := range migrators {
							ms, err := migrator.MigrationsWithStatus(c.Context)
							if err != nil {
								return err
							}
							fmt.Printf("Migrations for module: %s\n", moduleName)
							fmt.Printf("  %s\n", ms)
							fmt.Printf("  Applied: %s\n", ms.Applied())
							fmt.Printf("  Unapplied: %s\n", ms.Unapplied())
						}
						return nil
					})
				},
			},
		},
	}
}

func newRiverCommand() *cli.Command {
	run := func(fn func(context.Context, *pgxpool.Pool, *slog.Logger) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Storage.Driver != database.DriverPostgres {
				return fmt.Errorf("river needs the postgres driver, got %q", cfg.Storage.Driver)
			}
			pool, err := pgxpool.New(c.Context, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("failed to create pgx pool: %w", err)
			}
			defer pool.Close()
			return fn(c.Context, pool, observability.NewLogger(cfg.Observability.Environment, os.Stdout))
		}
	}

	return &cli.Command{
		Name:  "river",
		Usage: "upkeep queue schema",
		Subcommands: []*cli.Command{
			{Name: "up", Usage: "apply River migrations", Action: run(rafflequeue.MigrateUp)},
			{Name: "down", Usage: "roll back the latest River migration", Action: run(rafflequeue.MigrateDown)},
		},
	}
}
