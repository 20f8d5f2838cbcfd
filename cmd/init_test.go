package cmd

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AustinKelsay/gtdsync/pkg/config"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed, skipping")
	}
}

func TestRunInit(t *testing.T) {
	skipIfNoGit(t)

	t.Run("Happy Path", func(t *testing.T) {
		base := t.TempDir()
		path := filepath.Join(base, config.SettingsFileName)
		repo := filepath.Join(base, "repo")

		err := RunInit(context.Background(), map[string]interface{}{
			"settings":     path,
			"repo":         repo,
			"workspace":    filepath.Join(base, "workspace"),
			"keep-history": 3,
		})
		if err != nil {
			t.Fatalf("RunInit failed: %v", err)
		}

		settings, err := config.Load(path)
		if err != nil {
			t.Fatalf("failed to load generated settings: %v", err)
		}
		if settings.RepoPath != repo {
			t.Errorf("expected repoPath %q, got %q", repo, settings.RepoPath)
		}
		if settings.KeepHistory != 3 {
			t.Errorf("expected keepHistory 3, got %d", settings.KeepHistory)
		}

		// The repository must have been initialized.
		if _, err := os.Stat(filepath.Join(repo, ".git")); err != nil {
			t.Errorf("expected an initialized git repository: %v", err)
		}
	})

	t.Run("Error - Missing repo flag", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), config.SettingsFileName)
		err := RunInit(context.Background(), map[string]interface{}{
			"settings":  path,
			"workspace": t.TempDir(),
		})
		if err == nil || !strings.Contains(err.Error(), "-repo") {
			t.Errorf("expected missing repo flag error, got: %v", err)
		}
	})

	t.Run("Error - Existing settings without force", func(t *testing.T) {
		base := t.TempDir()
		path := filepath.Join(base, config.SettingsFileName)
		if err := config.Save(path, config.NewDefault()); err != nil {
			t.Fatal(err)
		}

		err := RunInit(context.Background(), map[string]interface{}{
			"settings":  path,
			"repo":      filepath.Join(base, "repo"),
			"workspace": filepath.Join(base, "workspace"),
		})
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected already-exists error, got: %v", err)
		}
	})

	t.Run("Force overwrites existing settings", func(t *testing.T) {
		base := t.TempDir()
		path := filepath.Join(base, config.SettingsFileName)

		existing := config.NewDefault()
		existing.RepoPath = "/old/repo"
		if err := config.Save(path, existing); err != nil {
			t.Fatal(err)
		}

		repo := filepath.Join(base, "repo")
		err := RunInit(context.Background(), map[string]interface{}{
			"settings":  path,
			"repo":      repo,
			"workspace": filepath.Join(base, "workspace"),
			"force":     true,
		})
		if err != nil {
			t.Fatalf("RunInit with -force failed: %v", err)
		}

		settings, err := config.Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if settings.RepoPath != repo {
			t.Errorf("expected settings to be overwritten, got repoPath %q", settings.RepoPath)
		}
	})
}
