/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command tombstone inspects the database configured for tombstone
// repositories: connection health, pool statistics, migrations and the
// foreign key constraints declared in YAML.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tomoncle/tombstone/database"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	if err := newApp().Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "tombstone",
		Usage: "Database tooling for soft delete repositories",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", Sources: cli.EnvVars("TOMBSTONE_CONFIG")},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log at debug level"},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if c.Bool("verbose") {
				database.GetLogger().SetLevel(database.LogLevelDebug)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			healthCommand(),
			statsCommand(),
			migrateCommand(),
			fkCommand(),
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Connect and report database health",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withDB(ctx, c, func(ctx context.Context, _ *database.Config) error {
				status := database.GetHealthStatus(ctx)
				if err := printYAML(c.Root().Writer, status); err != nil {
					return err
				}
				if !status.Healthy {
					return cli.Exit("database is unhealthy", 1)
				}
				return nil
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print connection pool statistics",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withDB(ctx, c, func(ctx context.Context, _ *database.Config) error {
				return printYAML(c.Root().Writer, database.GetDatabaseStats())
			})
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run pending migrations and list the applied ones",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "only list applied migrations"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withDB(ctx, c, func(ctx context.Context, cfg *database.Config) error {
				if !c.Bool("list") {
					if err := database.RunMigrations(ctx); err != nil {
						return err
					}
				}
				mm := database.NewMigrationManager(database.GetDB(), database.GetLogger(), cfg.DataMigrateConfig)
				applied, err := mm.GetAppliedMigrations(ctx)
				if err != nil {
					return err
				}
				return printYAML(c.Root().Writer, applied)
			})
		},
	}
}

func fkCommand() *cli.Command {
	fileFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "foreign key YAML file, defaults to data_migrate_config.foreign_key_file"}
	}
	return &cli.Command{
		Name:  "fk",
		Usage: "Foreign key constraints declared in YAML",
		Commands: []*cli.Command{
			{
				Name:  "sql",
				Usage: "Print the ALTER TABLE statements",
				Flags: []cli.Flag{fileFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					fkm, err := loadForeignKeys(c)
					if err != nil {
						return err
					}
					for _, stmt := range fkm.SQLStatements() {
						fmt.Fprintln(c.Root().Writer, stmt+";")
					}
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Check every constraint for structural problems",
				Flags: []cli.Flag{fileFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					fkm, err := loadForeignKeys(c)
					if err != nil {
						return err
					}
					errs := fkm.ValidateConstraints()
					for _, e := range errs {
						fmt.Fprintln(c.Root().ErrWriter, e)
					}
					if len(errs) > 0 {
						return cli.Exit(fmt.Sprintf("%d invalid constraints", len(errs)), 1)
					}
					fmt.Fprintf(c.Root().Writer, "%d constraints ok\n", len(fkm.ListAllConstraints()))
					return nil
				},
			},
			{
				Name:  "apply",
				Usage: "Add the constraints to the configured database",
				Flags: []cli.Flag{fileFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					fkm, err := loadForeignKeys(c)
					if err != nil {
						return err
					}
					if errs := fkm.ValidateConstraints(); len(errs) > 0 {
						return cli.Exit(fmt.Sprintf("%d invalid constraints, run fk validate", len(errs)), 1)
					}
					return withDB(ctx, c, func(ctx context.Context, _ *database.Config) error {
						applied, err := fkm.AddAllForeignKeys(ctx, database.GetDB())
						if err != nil {
							return err
						}
						fmt.Fprintf(c.Root().Writer, "%d of %d constraints applied\n", applied, len(fkm.ListAllConstraints()))
						return nil
					})
				},
			},
		},
	}
}

func loadConfig(c *cli.Command) (*database.Config, error) {
	return database.LoadConfig(c.Root().String("config"))
}

func loadForeignKeys(c *cli.Command) (*database.ForeignKeyManager, error) {
	path := c.String("file")
	if path == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return nil, err
		}
		path = cfg.DataMigrateConfig.ForeignKeyFile
	}
	if path == "" {
		return nil, cli.Exit("no foreign key file, pass --file or set data_migrate_config.foreign_key_file", 2)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("foreign key file: %w", err)
	}
	return database.NewConfigurableForeignKeyManager(database.GetLogger(), path)
}

// withDB opens the global database for the duration of fn.
func withDB(ctx context.Context, c *cli.Command, fn func(context.Context, *database.Config) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.DataMigrateConfig.EnableMigrateOnStartup = false
	cfg.ConnectionConfig.HealthCheckInterval = 0
	if _, err := database.InitDB(ctx, cfg); err != nil {
		return err
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			database.GetLogger().Warn("Failed to close database", "error", err.Error())
		}
	}()
	return fn(ctx, cfg)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
