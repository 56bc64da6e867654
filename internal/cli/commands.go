package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/spf13/cobra"
)

// NewBackupCommand writes a snapshot and prunes old ones.
func NewBackupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "backup",
		Short:        "Write a database snapshot",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			path, err := s.SnapshotBackup(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]string{"path": path}, func(w io.Writer) {
				fmt.Fprintf(w, "backup written to %s\n", path)
			})
		},
	}
}

// NewRestoreCommand replaces the database with a snapshot. The argument is a
// snapshot name from the backup directory or a path to any sqlite file.
func NewRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "restore <snapshot>",
		Short:        "Restore the database from a snapshot",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			path := args[0]
			if filepath.Base(path) == path {
				path = s.SnapshotPath(path)
			}
			if err := s.RestoreFromSnapshot(cmd.Context(), path); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]string{"restored": path}, func(w io.Writer) {
				fmt.Fprintf(w, "database restored from %s\n", path)
			})
		},
	}
}

func NewSnapshotsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "snapshots",
		Short:        "List snapshots, newest first",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			snaps, err := s.ListSnapshots()
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), snaps, func(w io.Writer) {
				if len(snaps) == 0 {
					fmt.Fprintln(w, "no snapshots")
					return
				}
				for _, snap := range snaps {
					fmt.Fprintf(w, "%s\t%d bytes\t%s\n", snap.Name, snap.SizeBytes, snap.CreatedAt.Format(time.RFC3339))
				}
			})
		},
	}
}

func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "stats",
		Short:        "Show database statistics",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), st, func(w io.Writer) { writeStats(w, st) })
		},
	}
}

func writeStats(w io.Writer, st *store.Stats) {
	fmt.Fprintf(w, "subscribers:        %d (%d assigned)\n", st.Subscribers, st.AssignedSubscribers)
	fmt.Fprintf(w, "groups:             %d (%d incomplete)\n", st.Groups, st.IncompleteGroups)
	fmt.Fprintf(w, "keywords:           %d (%d unique)\n", st.Keywords, st.UniqueKeywords)
	fmt.Fprintf(w, "processed posts:    %d\n", st.ProcessedPosts)
	fmt.Fprintf(w, "admins:             %d\n", st.Admins)
	fmt.Fprintf(w, "database size:      %.2f MB\n", float64(st.DatabaseBytes)/(1024*1024))
}
