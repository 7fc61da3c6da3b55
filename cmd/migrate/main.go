// Package main applies, rolls back or lists the embedded Postgres
// migrations.
//
//	migrate up       apply every pending migration
//	migrate down     roll back the last applied migration
//	migrate status   list migrations and when they were applied
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alem-hub/learnhub/config"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/learnhub/pkg/logger"
)

const usage = "usage: migrate up|down|status"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(ctx, os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, action string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: "console",
	}).With(logger.Component("migrate"))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	conn, err := postgres.NewConnection(ctx, postgres.Config{URL: cfg.Database.URL, MaxConns: 2, MinConns: 1})
	if err != nil {
		return err
	}
	defer conn.Close()

	m := postgres.NewMigrator(conn)
	switch action {
	case "up":
		n, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", logger.Int("count", n))
	case "down":
		if err := m.Rollback(ctx); err != nil {
			return err
		}
		log.Info("last migration rolled back")
	case "status":
		list, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, mig := range list {
			applied := "pending"
			if mig.IsApplied {
				applied = mig.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown action %q (%s)", action, usage)
	}
	return nil
}
