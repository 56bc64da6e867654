// Package cli implements alertsctl, the offline maintenance tool for the
// alert database. Run it while the server is stopped.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseFile string
	BackupDir    string
	Retention    int
	Format       string // "json" | "text"
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the root command for alertsctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "alertsctl",
		Short: "Maintain the keyword-alerts database",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseFile, "db", "bot_database.db", "database file")
	cmd.PersistentFlags().StringVar(&opts.BackupDir, "backup-dir", "backups", "snapshot directory")
	cmd.PersistentFlags().IntVar(&opts.Retention, "keep", 5, "snapshots kept after a backup")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

func (o *RootOptions) open(ctx context.Context) (*store.SQLiteStore, error) {
	return store.Open(ctx, o.DatabaseFile,
		store.WithBackupDir(o.BackupDir),
		store.WithSnapshotRetention(o.Retention),
	)
}

// print writes v as indented JSON in json mode, or calls text otherwise.
func (o *RootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
