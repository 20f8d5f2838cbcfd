package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/AustinKelsay/gtdsync/pkg/util"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for missing settings file, got: %v", err)
	}
	if settings.Branch != DefaultBranch {
		t.Errorf("expected default branch %q, got %q", DefaultBranch, settings.Branch)
	}
	if settings.KeepHistory != defaultKeepHistory {
		t.Errorf("expected default keepHistory %d, got %d", defaultKeepHistory, settings.KeepHistory)
	}
	if !settings.Enabled {
		t.Errorf("expected sync to be enabled by default")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	// A partial file must only override the fields it names.
	path := filepath.Join(t.TempDir(), SettingsFileName)
	partial := `{"repoPath": "/tmp/repo", "keepHistory": 3}`
	if err := os.WriteFile(path, []byte(partial), util.UserOnlyFilePerms); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.RepoPath != "/tmp/repo" {
		t.Errorf("expected repoPath '/tmp/repo', got %q", settings.RepoPath)
	}
	if settings.KeepHistory != 3 {
		t.Errorf("expected keepHistory 3, got %d", settings.KeepHistory)
	}
	if settings.Branch != DefaultBranch {
		t.Errorf("expected branch to keep its default, got %q", settings.Branch)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	if err := os.WriteFile(path, []byte("{not json"), util.UserOnlyFilePerms); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a malformed settings file, but got nil")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SettingsFileName)

	settings := NewDefault()
	settings.RepoPath = "/tmp/repo"
	settings.WorkspacePath = "/tmp/workspace"
	settings.EncryptionKey = "secret"
	settings.KeepHistory = 7

	if err := Save(path, settings); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.RepoPath != settings.RepoPath || loaded.KeepHistory != settings.KeepHistory {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.EncryptionKey != "secret" {
		t.Errorf("expected encryption key to survive the round trip")
	}

	// The settings file carries a passphrase, so it must be owner-only.
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != util.UserOnlyFilePerms {
			t.Errorf("expected permissions %v, got %v", util.UserOnlyFilePerms, info.Mode().Perm())
		}
	}

	// No temp files may be left behind.
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", SettingsFileName)
	if err := Save(path, NewDefault()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected settings file to exist: %v", err)
	}
}

func TestMergeSettingsWithFlags(t *testing.T) {
	base := NewDefault()
	base.RepoPath = "/from/file"
	base.Branch = "trunk"

	merged := MergeSettingsWithFlags(base, map[string]any{
		"repo":         "/from/flag",
		"workspace":    "/ws/flag",
		"keep-history": 9,
	})

	if merged.RepoPath != "/from/flag" {
		t.Errorf("expected flag to win for repoPath, got %q", merged.RepoPath)
	}
	if merged.WorkspacePath != "/ws/flag" {
		t.Errorf("expected flag to win for workspacePath, got %q", merged.WorkspacePath)
	}
	if merged.KeepHistory != 9 {
		t.Errorf("expected keepHistory 9, got %d", merged.KeepHistory)
	}
	if merged.Branch != "trunk" {
		t.Errorf("expected untouched field to keep its base value, got %q", merged.Branch)
	}
}

// validSettings returns settings pointing at real temp directories.
func validSettings(t *testing.T) Settings {
	t.Helper()
	base := t.TempDir()
	workspace := filepath.Join(base, "workspace")
	if err := os.Mkdir(workspace, util.UserWritableDirPerms); err != nil {
		t.Fatal(err)
	}

	settings := NewDefault()
	settings.WorkspacePath = workspace
	settings.RepoPath = filepath.Join(base, "repo")
	settings.EncryptionKey = "passphrase"
	return settings
}

func TestBuildSyncConfig(t *testing.T) {
	t.Run("Happy Path", func(t *testing.T) {
		settings := validSettings(t)
		cfg, err := settings.BuildSyncConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Branch != DefaultBranch {
			t.Errorf("expected default branch, got %q", cfg.Branch)
		}
		if cfg.KeepHistory != defaultKeepHistory {
			t.Errorf("expected default keepHistory, got %d", cfg.KeepHistory)
		}
		// The repo directory must have been created.
		if info, err := os.Stat(cfg.RepoPath); err != nil || !info.IsDir() {
			t.Errorf("expected repository directory to be created")
		}
	})

	t.Run("KeepHistory is clamped", func(t *testing.T) {
		testCases := []struct {
			name     string
			in       int
			expected int
		}{
			{"Below minimum", -4, MinKeepHistory},
			{"Above maximum", 100, MaxKeepHistory},
			{"Unset falls back to default", 0, defaultKeepHistory},
			{"In range passes through", 12, 12},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				settings := validSettings(t)
				settings.KeepHistory = tc.in
				cfg, err := settings.BuildSyncConfig()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if cfg.KeepHistory != tc.expected {
					t.Errorf("keepHistory %d: expected %d, got %d", tc.in, tc.expected, cfg.KeepHistory)
				}
			})
		}
	})

	t.Run("Error - Empty encryption key", func(t *testing.T) {
		settings := validSettings(t)
		settings.EncryptionKey = "   "
		_, err := settings.BuildSyncConfig()
		if err == nil || !strings.Contains(err.Error(), "encryption key") {
			t.Errorf("expected encryption key error, got: %v", err)
		}
	})

	t.Run("Error - Missing workspace", func(t *testing.T) {
		settings := validSettings(t)
		settings.WorkspacePath = filepath.Join(t.TempDir(), "nonexistent")
		_, err := settings.BuildSyncConfig()
		if err == nil || !strings.Contains(err.Error(), "workspace path does not exist") {
			t.Errorf("expected workspace existence error, got: %v", err)
		}
	})

	t.Run("Error - Repo nested in workspace", func(t *testing.T) {
		settings := validSettings(t)
		settings.RepoPath = filepath.Join(settings.WorkspacePath, "repo")
		_, err := settings.BuildSyncConfig()
		if err == nil || !strings.Contains(err.Error(), "outside the workspace") {
			t.Errorf("expected nesting error, got: %v", err)
		}
	})

	t.Run("Error - Workspace nested in repo", func(t *testing.T) {
		settings := validSettings(t)
		// Make the workspace a child of the repo directory.
		repo := filepath.Join(t.TempDir(), "repo")
		workspace := filepath.Join(repo, "workspace")
		if err := os.MkdirAll(workspace, util.UserWritableDirPerms); err != nil {
			t.Fatal(err)
		}
		settings.RepoPath = repo
		settings.WorkspacePath = workspace
		_, err := settings.BuildSyncConfig()
		if err == nil || !strings.Contains(err.Error(), "outside the workspace") {
			t.Errorf("expected nesting error, got: %v", err)
		}
	})

	t.Run("Error - Sync disabled", func(t *testing.T) {
		settings := validSettings(t)
		settings.Enabled = false
		_, err := settings.BuildSyncConfig()
		if err == nil || !strings.Contains(err.Error(), "disabled") {
			t.Errorf("expected disabled error, got: %v", err)
		}
	})
}
