// Package cli implements purgectl, the operator command for bulk purges.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/localnerve/formentries/internal/app"
	"github.com/localnerve/formentries/internal/config"
	"github.com/localnerve/formentries/internal/database"
	"github.com/localnerve/formentries/internal/logging"
	"github.com/localnerve/formentries/internal/metrics"
	"github.com/spf13/cobra"
)

// Opener returns wired services and a function releasing them.
type Opener func(ctx context.Context) (*app.App, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	User   string
	Format string // "json" | "text"

	open Opener
}

// NewRootCommand creates the purgectl root command over the configured
// database and media store.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openFromConfig)
}

func newRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "purgectl",
		Short: "Bulk purge of project entries and media",
		Long: `purgectl drives the chunked bulk deletion of a project.

A project must be locked before it can be purged. Each purge command runs
chunks until the project is empty or --max-chunks is reached.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.User, "user", "purgectl", "requestor id that holds the purge lock")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newEntriesCommand(opts))
	cmd.AddCommand(newMediaCommand(opts))
	cmd.AddCommand(newStatusCommand(opts, "lock"))
	cmd.AddCommand(newStatusCommand(opts, "unlock"))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

func openFromConfig(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logging.Setup(cfg.LogLevel, "console")

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = database.Close(db) }

	if err := database.AutoMigrate(db); err != nil {
		closeDB()
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, db, metrics.Init(nil))
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return a, closeDB, nil
}

func output(w io.Writer, format string, v any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
