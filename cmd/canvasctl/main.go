// Command canvasctl performs maintenance on the pixelwall edit log.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pscheid92/pixelwall/internal/adapter/postgres"
	"github.com/pscheid92/pixelwall/internal/domain"
	"github.com/pscheid92/pixelwall/internal/editlog"
	"github.com/pscheid92/pixelwall/internal/platform/logging"
	"github.com/pscheid92/pixelwall/internal/platform/version"
)

const connectTimeout = 10 * time.Second

type globalOptions struct {
	databaseURL string
	verbose     bool
}

func addGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
}

type logReader interface {
	Recent(ctx context.Context, limit int) ([]postgres.LogEntry, error)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "canvasctl",
		Short:         "Maintain the pixelwall edit log",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if opts.verbose {
				level = "debug"
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), level, "text"))

			if opts.databaseURL == "" {
				return errors.New("database URL required (--database-url or DATABASE_URL)")
			}
			return nil
		},
	}
	root.SetOut(out)
	addGlobalFlags(root.PersistentFlags(), opts)

	root.AddCommand(newMigrateCmd(opts), newLogsCmd(opts))
	return root
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the edit log schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connect(cmd.Context(), opts.databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewEditLogRepo(pool).EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newLogsCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		decode bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the most recent persisted edit batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			pool, err := connect(cmd.Context(), opts.databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			return runLogs(cmd.Context(), cmd.OutOrStdout(), postgres.NewEditLogRepo(pool), limit, decode)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of batches to print")
	cmd.Flags().BoolVar(&decode, "decode", false, "Print one line per edit instead of the raw batch")
	return cmd
}

func runLogs(ctx context.Context, out io.Writer, reader logReader, limit int, decode bool) error {
	entries, err := reader.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if decode {
		_, _ = fmt.Fprintln(tw, "BATCH\tTIME\tCELL\tCOLOR\tIDENTITY")
	} else {
		_, _ = fmt.Fprintln(tw, "BATCH\tCREATED\tDATA")
	}

	for _, entry := range entries {
		if !decode {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", entry.ID, entry.CreatedAt.UTC().Format(time.RFC3339), entry.Data)
			continue
		}

		records, err := editlog.DecodeBatch(entry.Data)
		if err != nil {
			slog.Warn("Skipping undecodable batch", "batch", entry.ID, "error", err)
			continue
		}
		for _, r := range records {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", entry.ID, r.Timestamp.UTC().Format(time.RFC3339Nano), domain.CellToken(r.Cell), r.Color, r.Identity)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, databaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
