// Command migrate manages the ScholarVault database schema.
//
// Usage:
//
//	migrate [-path dir] [-yes] <command> [arg]
//
// Commands:
//
//	status      show the applied version against the migration files
//	up          apply every pending migration
//	steps N     apply (N > 0) or roll back (N < 0) N migrations
//	down        roll back every migration (requires -yes)
//	force V     record version V as clean after a manual repair
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/config"
	"github.com/scholarvault/scholarvault-service/internal/database"
	"github.com/scholarvault/scholarvault-service/internal/observability"
)

type command struct {
	name string
	n    int
}

var errUsage = errors.New("usage: migrate [-path dir] [-yes] status|up|down|steps N|force V")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, database.ErrDirtySchema) {
			fmt.Fprintln(os.Stderr, "repair the schema by hand, then run: migrate force <version>")
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("path", "", "migrations directory (default: database.migration_path)")
	yes := fs.Bool("yes", false, "confirm destructive commands")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd, err := parseCommand(fs.Args())
	if err != nil {
		return err
	}
	if cmd.name == "down" && !*yes {
		return errors.New("down drops every ScholarVault table; rerun with -yes to confirm")
	}

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := dbCfg.MigrationPath
	if *path != "" {
		dir = *path
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:   "info",
		Format:  "console",
		Output:  "stderr",
		Service: "scholarvault-migrate",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, dbCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close migrator")
		}
	}()

	if err := apply(migrator, cmd, logger); err != nil {
		return err
	}

	st, err := migrator.Status()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatStatus(st))
	return nil
}

// schemaMigrator is the part of database.Migrator the commands drive.
type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
}

func apply(m schemaMigrator, cmd command, logger zerolog.Logger) error {
	switch cmd.name {
	case "status":
		return nil
	case "up":
		return m.Up()
	case "down":
		logger.Warn().Msg("rolling back the ScholarVault schema")
		return m.Down()
	case "steps":
		return m.Steps(cmd.n)
	case "force":
		return m.Force(cmd.n)
	default:
		return errUsage
	}
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}

	cmd := command{name: args[0]}
	switch cmd.name {
	case "status", "up", "down":
		if len(args) != 1 {
			return command{}, fmt.Errorf("%s takes no arguments", cmd.name)
		}
	case "steps", "force":
		if len(args) != 2 {
			return command{}, fmt.Errorf("%s needs exactly one number", cmd.name)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("%s: %q is not a number", cmd.name, args[1])
		}
		if cmd.name == "steps" && n == 0 {
			return command{}, errors.New("steps: N must not be 0")
		}
		if cmd.name == "force" && n < 0 {
			return command{}, errors.New("force: version must not be negative")
		}
		cmd.n = n
	default:
		return command{}, fmt.Errorf("unknown command %q: %w", cmd.name, errUsage)
	}
	return cmd, nil
}

func formatStatus(st database.SchemaStatus) string {
	switch {
	case st.Dirty:
		return fmt.Sprintf("scholarvault schema: version %d (dirty), latest %d", st.Current, st.Latest)
	case st.Pending > 0:
		return fmt.Sprintf("scholarvault schema: version %d, latest %d, %d pending", st.Current, st.Latest, st.Pending)
	default:
		return fmt.Sprintf("scholarvault schema: version %d, up to date", st.Current)
	}
}
