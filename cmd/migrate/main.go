package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/seed"
	"github.com/vladislavdragonenkov/shopqueue/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "SHOPQUEUE_POSTGRES_DSN"
)

// cliStore — то, что утилите нужно от хранилища: миграции и запись фикстур.
type cliStore interface {
	domain.Store
	domain.CatalogWriter
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	Migrations(ctx context.Context) ([]postgres.MigrationState, error)
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (cliStore, error)

type rootOptions struct {
	dsn     string
	timeout time.Duration
	open    openFunc
}

func openPostgres(ctx context.Context, dsn string) (cliStore, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newRootCommand(open openFunc) *cobra.Command {
	opts := &rootOptions{open: open}

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the shopqueue PostgreSQL schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if strings.TrimSpace(opts.dsn) == "" {
				opts.dsn = strings.TrimSpace(os.Getenv(envPostgresDSN))
			}
			if opts.dsn == "" {
				return fmt.Errorf("%s (or --dsn) is required", envPostgresDSN)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall command timeout")

	cmd.AddCommand(newUpCommand(opts), newDownCommand(opts), newStatusCommand(opts), newSeedCommand(opts))
	return cmd
}

func newUpCommand(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store cliStore) error {
				if err := store.MigrateUp(ctx, steps); err != nil {
					return fmt.Errorf("migrate up failed: %w", err)
				}
				return printStatus(ctx, cmd.OutOrStdout(), store, "migrate up ok")
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply (0 = all)")
	return cmd
}

func newDownCommand(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withStore(cmd, opts, func(ctx context.Context, store cliStore) error {
				if err := store.MigrateDown(ctx, steps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				return printStatus(ctx, cmd.OutOrStdout(), store, "migrate down ok")
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show embedded migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store cliStore) error {
				states, err := store.Migrations(ctx)
				if err != nil {
					return fmt.Errorf("migration status failed: %w", err)
				}
				out := cmd.OutOrStdout()
				for _, st := range states {
					mark := "pending"
					if st.Applied {
						mark = "applied"
					}
					_, _ = fmt.Fprintf(out, "%04d  %-8s %s\n", st.Version, mark, st.Name)
				}
				return nil
			})
		},
	}
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load shops, menus, queues and customers from YAML (embedded demo set by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fx, err := loadFixtures(file)
			if err != nil {
				return err
			}
			return withStore(cmd, opts, func(ctx context.Context, store cliStore) error {
				res, err := seed.Apply(ctx, store, store, fx, log.WithField("component", "seed"))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seed ok: shops=%d menu_items=%d queues=%d customers=%d\n",
					res.Shops, res.MenuItems, res.Queues, res.Customers)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to seed YAML")
	return cmd
}

func loadFixtures(file string) (seed.Fixtures, error) {
	if file == "" {
		return seed.Default()
	}
	return seed.LoadFile(file)
}

func withStore(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, store cliStore) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	store, err := opts.open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

func printStatus(ctx context.Context, out io.Writer, store cliStore, prefix string) error {
	states, err := store.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	var (
		version int64
		applied int
	)
	for _, st := range states {
		if st.Applied {
			applied++
			version = st.Version
		}
	}
	_, err = fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, applied)
	return err
}

func main() {
	_ = godotenv.Load()

	cmd := newRootCommand(openPostgres)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
