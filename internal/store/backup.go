package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	snapshotPrefix     = "backup_"
	snapshotSuffix     = ".db"
	snapshotTimeLayout = "20060102_150405.000000"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// Snapshot describes one backup file.
type Snapshot struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotBackup writes a consistent copy of the database into the backup
// directory and then prunes all but the most recent snapshots. The copy runs
// under the store lock, so no write can interleave with it.
func (s *SQLiteStore) SnapshotBackup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	dest := filepath.Join(s.backupDir, snapshotName(s.now()))
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("snapshot %s: %w", dest, ErrDuplicate)
	}

	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	if err := s.pruneSnapshots(); err != nil {
		return dest, fmt.Errorf("pruning snapshots: %w", err)
	}
	return dest, nil
}

// ListSnapshots returns the stored snapshots, newest first.
func (s *SQLiteStore) ListSnapshots() ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.snapshots()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}

// SnapshotPath resolves a snapshot file name inside the backup directory.
// Only the base name of name is used.
func (s *SQLiteStore) SnapshotPath(name string) string {
	return filepath.Join(s.backupDir, filepath.Base(name))
}

// RestoreFromSnapshot replaces the live database with the snapshot at path.
// The handle is closed, the file swapped in with a rename, and the database
// reopened, all while holding the store lock.
func (s *SQLiteStore) RestoreFromSnapshot(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkSnapshot(path); err != nil {
		return err
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
		s.db = nil
	}

	copyErr := replaceFile(path, s.path)

	// Reopen even when the copy failed so the previous database stays usable.
	db, openErr := openDB(context.WithoutCancel(ctx), s.path)
	if openErr != nil {
		return errors.Join(copyErr, fmt.Errorf("reopening database: %w", openErr))
	}
	s.db = db

	if copyErr != nil {
		return fmt.Errorf("restoring snapshot: %w", copyErr)
	}
	return nil
}

func snapshotName(t time.Time) string {
	return snapshotPrefix + t.UTC().Format(snapshotTimeLayout) + snapshotSuffix
}

// snapshots returns snapshot files sorted oldest first. Callers hold mu.
func (s *SQLiteStore) snapshots() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Snapshot{}, nil
		}
		return nil, fmt.Errorf("reading backup dir: %w", err)
	}

	snaps := []Snapshot{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		snap := Snapshot{Name: name, Path: filepath.Join(s.backupDir, name)}
		if info, err := entry.Info(); err == nil {
			snap.SizeBytes = info.Size()
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		if t, err := time.Parse(snapshotTimeLayout, stamp); err == nil {
			snap.CreatedAt = t
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps, nil
}

func (s *SQLiteStore) pruneSnapshots() error {
	snaps, err := s.snapshots()
	if err != nil {
		return err
	}
	if len(snaps) <= s.retention {
		return nil
	}

	var errs []error
	for _, old := range snaps[:len(snaps)-s.retention] {
		if err := os.Remove(old.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrSnapshotNotFound)
		}
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header, sqliteHeader) {
		return fmt.Errorf("%s is not a sqlite database", path)
	}
	return nil
}

// replaceFile copies src next to dst and renames it over dst.
func replaceFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".restore-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		os.Remove(dst + suffix)
	}
	return os.Rename(tmpName, dst)
}
