// Package restore replaces the live workspace with the contents of a
// decrypted snapshot archive.
//
// The pipeline is a small state machine: Unpacking (into a fresh temp
// directory beside the workspace, never inside it), Swapping (the old
// workspace is renamed aside, the unpacked directory renamed into place),
// then Committed (old workspace deleted, best-effort) or RolledBack (old
// workspace renamed back, unpacked directory removed). Renames are atomic
// on one filesystem, so an observer sees either fully the old content or
// fully the new content. The workspace is never left absent if it existed
// before the call; when in doubt the old workspace stays.
package restore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AustinKelsay/gtdsync/pkg/archive"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// renamePath is swappable so tests can force the final swap to fail.
var renamePath = os.Rename

// Restore unpacks archiveData and atomically swaps it in at workspacePath.
func Restore(workspacePath string, archiveData []byte) error {
	parent := filepath.Dir(workspacePath)
	if err := os.MkdirAll(parent, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to prepare workspace parent directory %s: %w", parent, err)
	}

	// --- Unpacking ---
	unpackDir, err := os.MkdirTemp(parent, "gtdsync-restore-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary restore directory: %w", err)
	}

	if err := archive.Extract(archiveData, unpackDir); err != nil {
		if rmErr := os.RemoveAll(unpackDir); rmErr != nil {
			plog.Warn("Failed to clean temporary restore directory", "path", unpackDir, "error", rmErr)
		}
		return fmt.Errorf("failed to unpack archive: %w", err)
	}

	// --- Swapping ---
	var oldWorkspace string
	if _, err := os.Stat(workspacePath); err == nil {
		oldWorkspace, err = reserveSiblingPath(parent, "gtdsync-workspace-old-*")
		if err != nil {
			if rmErr := os.RemoveAll(unpackDir); rmErr != nil {
				plog.Warn("Failed to clean temporary restore directory", "path", unpackDir, "error", rmErr)
			}
			return fmt.Errorf("failed to prepare workspace backup path: %w", err)
		}
		if err := renamePath(workspacePath, oldWorkspace); err != nil {
			if rmErr := os.RemoveAll(unpackDir); rmErr != nil {
				plog.Warn("Failed to clean temporary restore directory", "path", unpackDir, "error", rmErr)
			}
			return fmt.Errorf("failed to move existing workspace aside: %w", err)
		}
	}

	if err := renamePath(unpackDir, workspacePath); err != nil {
		// --- RolledBack ---
		if oldWorkspace != "" {
			if revertErr := renamePath(oldWorkspace, workspacePath); revertErr != nil {
				plog.Warn("Failed to restore original workspace from backup", "path", oldWorkspace, "error", revertErr)
			}
		}
		if rmErr := os.RemoveAll(unpackDir); rmErr != nil {
			plog.Warn("Failed to clean temporary restore directory", "path", unpackDir, "error", rmErr)
		}
		return fmt.Errorf("failed to replace workspace after restore: %w", err)
	}

	// --- Committed ---
	if oldWorkspace != "" {
		if err := os.RemoveAll(oldWorkspace); err != nil {
			// The restore itself already succeeded; losing the cleanup is
			// a warning, not a failure.
			plog.Warn("Failed to remove temporary workspace backup", "path", oldWorkspace, "error", err)
		}
	}
	plog.Notice("RESTORE", "workspace", workspacePath)
	return nil
}

// reserveSiblingPath claims a unique, not-yet-existing path in dir by
// creating and immediately removing a temp directory. The returned name is
// then free for an atomic rename.
func reserveSiblingPath(dir, pattern string) (string, error) {
	reserved, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	if err := os.Remove(reserved); err != nil {
		return "", err
	}
	return reserved, nil
}
