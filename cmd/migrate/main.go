package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"procuredata.io/internal/migrate"
)

type options struct {
	dsn        string
	migrations string
	seeds      string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply ProcureData schema migrations and seeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv("PROCUREDATA_PG_DSN"), "PostgreSQL DSN (default $PROCUREDATA_PG_DSN)")
	root.PersistentFlags().StringVar(&opts.migrations, "migrations", "", "directory of SQL migrations (default: embedded)")
	root.PersistentFlags().StringVar(&opts.seeds, "seeds", "", "directory of SQL seeds (default: embedded)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")

	root.AddCommand(
		command("up", "Apply pending migrations", opts, func(ctx context.Context, m *migrate.Manager) ([]string, error) {
			return m.Up(ctx)
		}),
		command("down", "Roll back the latest migration", opts, func(ctx context.Context, m *migrate.Manager) ([]string, error) {
			name, err := m.Down(ctx)
			if err != nil || name == "" {
				return nil, err
			}
			return []string{name}, nil
		}),
		command("seed", "Apply pending seed files", opts, func(ctx context.Context, m *migrate.Manager) ([]string, error) {
			return m.Seed(ctx)
		}),
		command("status", "List applied migrations", opts, func(ctx context.Context, m *migrate.Manager) ([]string, error) {
			return m.Status(ctx)
		}),
	)
	return root
}

func command(use, short string, opts *options, fn func(context.Context, *migrate.Manager) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.dsn == "" {
				return errors.New("missing DSN: provide --dsn or PROCUREDATA_PG_DSN")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			db, err := sql.Open("pgx", opts.dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			migrations, seeds := migrate.Embedded()
			if opts.migrations != "" {
				migrations = os.DirFS(opts.migrations)
			}
			if opts.seeds != "" {
				seeds = os.DirFS(opts.seeds)
			}
			names, err := fn(ctx, migrate.NewManager(db, migrations, seeds))
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

