package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckWorkspaceReadable(t *testing.T) {
	t.Run("Happy Path - Workspace is a directory", func(t *testing.T) {
		if err := CheckWorkspaceReadable(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Error - Workspace does not exist", func(t *testing.T) {
		nonExistentPath := filepath.Join(t.TempDir(), "nonexistent")
		err := CheckWorkspaceReadable(nonExistentPath)
		if err == nil {
			t.Fatal("expected an error for non-existent workspace, but got nil")
		}
		if !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("expected error about non-existent workspace, but got: %v", err)
		}
	})

	t.Run("Error - Workspace is a file", func(t *testing.T) {
		workspaceFile := filepath.Join(t.TempDir(), "workspace.txt")
		if err := os.WriteFile(workspaceFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckWorkspaceReadable(workspaceFile)
		if err == nil {
			t.Fatal("expected an error when workspace is a file, but got nil")
		}
		if !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error about workspace not being a directory, but got: %v", err)
		}
	})
}

func TestCheckRepoWritable(t *testing.T) {
	t.Run("Happy Path - Existing directory is writable", func(t *testing.T) {
		if err := CheckRepoWritable(t.TempDir()); err != nil {
			t.Errorf("expected no error, but got: %v", err)
		}
	})

	t.Run("Happy Path - Missing directory is created", func(t *testing.T) {
		repoDir := filepath.Join(t.TempDir(), "repo")
		if err := CheckRepoWritable(repoDir); err != nil {
			t.Errorf("expected no error, but got: %v", err)
		}
		if info, err := os.Stat(repoDir); err != nil || !info.IsDir() {
			t.Errorf("expected repository directory to be created")
		}
	})

	t.Run("Error - Repo path is a file", func(t *testing.T) {
		repoFile := filepath.Join(t.TempDir(), "repo.txt")
		if err := os.WriteFile(repoFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckRepoWritable(repoFile)
		if err == nil || !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error about repo path being a file, but got: %v", err)
		}
	})

	t.Run("No write test file left behind", func(t *testing.T) {
		repoDir := t.TempDir()
		if err := CheckRepoWritable(repoDir); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		entries, err := os.ReadDir(repoDir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty directory after write check, found %d entries", len(entries))
		}
	})
}

func TestCheckFreeSpace(t *testing.T) {
	t.Run("Happy Path - Small requirement", func(t *testing.T) {
		if err := CheckFreeSpace(t.TempDir(), 1); err != nil {
			t.Errorf("expected no error for trivial space requirement, but got: %v", err)
		}
	})

	t.Run("Error - Impossible requirement", func(t *testing.T) {
		available, ok, err := freeSpace(t.TempDir())
		if err != nil || !ok {
			t.Skip("free space reporting not available on this platform")
		}
		err = CheckFreeSpace(t.TempDir(), available*2+1)
		if err == nil {
			t.Fatal("expected an error for impossible space requirement, but got nil")
		}
		if !strings.Contains(err.Error(), "not enough free space") {
			t.Errorf("expected error about free space, but got: %v", err)
		}
	})
}
