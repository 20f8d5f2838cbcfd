// Package history lists, names, writes and prunes the encrypted snapshot
// files kept under the repository's backups directory.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// Suffix is the extension of every encrypted snapshot file.
const Suffix = ".tar.gz.enc"

// slugLayout renders a UTC timestamp as YYYYMMDDTHHMMSSZ for snapshot names.
const slugLayout = "20060102T150405Z"

// ErrNoBackups reports an empty history where at least one snapshot was required.
var ErrNoBackups = errors.New("no backups are available to restore")

// Entry describes one snapshot file on disk. Entries are ordered newest first.
type Entry struct {
	FileName string
	Modified time.Time
	Size     int64
}

// Slug formats a timestamp for use in a snapshot file name.
func Slug(t time.Time) string {
	return t.UTC().Format(slugLayout)
}

// FileName returns the snapshot file name for a timestamp.
func FileName(t time.Time) string {
	return "backup-" + Slug(t) + Suffix
}

// List returns the snapshots in dir sorted by modification time descending,
// ties broken by name descending so the order is stable within one
// operation. A missing directory yields an empty list, not an error.
// Unreadable per-entry metadata falls back to "now" rather than failing the
// whole listing.
func List(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups in %s: %w", dir, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), Suffix) {
			continue
		}

		var modified time.Time
		var size int64
		info, err := de.Info()
		if err != nil {
			plog.Warn("Failed to read backup metadata, assuming current time", "file", de.Name(), "error", err)
			modified = time.Now()
		} else {
			if !info.Mode().IsRegular() {
				continue
			}
			modified = info.ModTime()
			size = info.Size()
		}

		entries = append(entries, Entry{
			FileName: de.Name(),
			Modified: modified,
			Size:     size,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Modified.Equal(entries[j].Modified) {
			return entries[i].Modified.After(entries[j].Modified)
		}
		return entries[i].FileName > entries[j].FileName
	})
	return entries, nil
}

// Latest returns the newest snapshot in dir, or ErrNoBackups.
func Latest(dir string) (Entry, error) {
	entries, err := List(dir)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNoBackups
	}
	return entries[0], nil
}

// Write stores an encrypted snapshot under its final name using a
// write-then-rename so no reader ever observes a truncated file behind a
// valid-looking name.
func Write(dir, fileName string, data []byte) error {
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create backups directory %s: %w", dir, err)
	}

	tmpF, err := os.CreateTemp(dir, fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}
	tmpPath := tmpF.Name()

	// Clean up the temp file on any failure before the rename.
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary snapshot file", "path", tmpPath, "error", err)
		}
	}()

	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to write encrypted snapshot: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to sync encrypted snapshot: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close encrypted snapshot: %w", err)
	}

	finalPath := filepath.Join(dir, fileName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("failed to publish encrypted snapshot %s: %w", finalPath, err)
	}
	return nil
}

// Prune deletes every snapshot beyond the first keep entries (newest first).
// Deletion failures are logged and skipped: pruning is best-effort and must
// never block a successful backup.
func Prune(dir string, keep int) error {
	entries, err := List(dir)
	if err != nil {
		return err
	}
	if keep < 1 || len(entries) <= keep {
		return nil
	}

	for _, entry := range entries[keep:] {
		path := filepath.Join(dir, entry.FileName)
		if err := os.Remove(path); err != nil {
			plog.Warn("Failed to delete old backup", "path", path, "error", err)
			continue
		}
		plog.Notice("PRUNE", "file", entry.FileName)
	}
	return nil
}
