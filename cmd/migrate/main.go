package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"osutourney.org/internal/migrate"
	"osutourney.org/internal/obs"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	var (
		dsn            = os.Getenv("DATABASE_URL")
		migrationsPath = envOr("MIGRATIONS_PATH", "ops/migrations/sql")
		seedsPath      = envOr("SEEDS_PATH", "ops/migrations/seeds")
		migrationsTbl  = "schema_migrations"
		seedsTbl       = "schema_seeds"
		timeout        = 30 * time.Second
		log            = obs.InitLogger(obs.LogConfig{Level: envOr("LOG_LEVEL", "info"), Service: "migrate"})
	)

	var (
		db  *sql.DB
		mgr *migrate.Manager
	)
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply, roll back and inspect database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide --dsn or DATABASE_URL")
			}
			var err error
			db, err = sql.Open("pgx", dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			mgr = migrate.NewManager(db, os.DirFS(migrationsPath), os.DirFS(seedsPath),
				migrate.WithMigrationsTable(migrationsTbl),
				migrate.WithSeedsTable(seedsTbl),
				migrate.WithLogger(log),
			)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", dsn, "PostgreSQL DSN (env DATABASE_URL)")
	root.PersistentFlags().StringVar(&migrationsPath, "migrations", migrationsPath, "Path to SQL migrations (env MIGRATIONS_PATH)")
	root.PersistentFlags().StringVar(&seedsPath, "seeds", seedsPath, "Path to SQL seeds (env SEEDS_PATH)")
	root.PersistentFlags().StringVar(&migrationsTbl, "migrations-table", migrationsTbl, "Bookkeeping table for migrations")
	root.PersistentFlags().StringVar(&seedsTbl, "seeds-table", seedsTbl, "Bookkeeping table for seeds")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Overall timeout")

	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			applied, err := mgr.Up(ctx)
			if err != nil {
				return err
			}
			printApplied(cmd, applied)
			return nil
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			name, err := mgr.Down(ctx)
			if err != nil {
				return err
			}
			cmd.Println("rolled back", name)
			return nil
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Run seed files that have not been run yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			applied, err := mgr.Seed(ctx)
			if err != nil {
				return err
			}
			printApplied(cmd, applied)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			applied, pending, err := mgr.Status(ctx)
			if err != nil {
				return err
			}
			for _, a := range applied {
				cmd.Printf("applied  %s  %s\n", a.AppliedAt.UTC().Format(time.RFC3339), a.Name)
			}
			for _, p := range pending {
				cmd.Printf("pending  %s\n", p)
			}
			return nil
		},
	}

	root.AddCommand(upCmd, downCmd, seedCmd, statusCmd)
	if err := root.Execute(); err != nil {
		log.Error("migrate failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func printApplied(cmd *cobra.Command, names []string) {
	if len(names) == 0 {
		cmd.Println("nothing to apply")
		return
	}
	for _, n := range names {
		cmd.Println("applied", n)
	}
}
