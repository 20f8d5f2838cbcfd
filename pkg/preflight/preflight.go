// Package preflight provides validation checks that run before a sync
// operation begins. Apart from directory creation and the write probe,
// the checks are stateless and do not modify the system.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// CheckWorkspaceReadable validates that the workspace path exists and is a directory.
func CheckWorkspaceReadable(workspacePath string) error {
	info, err := os.Stat(workspacePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("workspace directory %s does not exist", workspacePath)
		}
		return fmt.Errorf("cannot stat workspace directory %s: %w", workspacePath, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("workspace path %s is not a directory", workspacePath)
	}

	return nil
}

// CheckRepoWritable ensures the sync repository directory can be created and
// is writable by performing filesystem modifications.
func CheckRepoWritable(repoPath string) error {
	if info, err := os.Stat(repoPath); err == nil && !info.IsDir() {
		return fmt.Errorf("repository path exists but is not a directory: %s", repoPath)
	}

	if err := os.MkdirAll(repoPath, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create repository directory %s: %w", repoPath, err)
	}

	// Perform a thorough write check by creating and deleting a temporary file.
	tempFile := filepath.Join(repoPath, ".gtdsync-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("repository directory %s is not writable: %w", repoPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// CheckFreeSpace verifies that the filesystem holding repoPath has at least
// requiredBytes available. On platforms without a usable statfs this check
// is a no-op.
func CheckFreeSpace(repoPath string, requiredBytes uint64) error {
	available, ok, err := freeSpace(repoPath)
	if err != nil {
		return fmt.Errorf("failed to determine free space for %s: %w", repoPath, err)
	}
	if !ok {
		return nil
	}
	if available < requiredBytes {
		return fmt.Errorf("not enough free space on %s: %d bytes available, %d bytes required", repoPath, available, requiredBytes)
	}
	return nil
}
