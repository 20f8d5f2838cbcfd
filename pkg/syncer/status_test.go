package syncer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AustinKelsay/gtdsync/pkg/config"
)

func TestComputeStatusDisabled(t *testing.T) {
	settings := config.NewDefault()
	settings.Enabled = false

	status := ComputeStatus(context.Background(), settings, "")
	if status.Enabled || status.Configured {
		t.Errorf("expected disabled, unconfigured status, got %+v", status)
	}
	if status.Message != "Sync is disabled" {
		t.Errorf("unexpected message: %q", status.Message)
	}
}

func TestComputeStatusIncomplete(t *testing.T) {
	settings := config.NewDefault()
	settings.RepoPath = t.TempDir()
	// Workspace and encryption key intentionally missing.

	status := ComputeStatus(context.Background(), settings, "")
	if status.Configured {
		t.Errorf("expected unconfigured status")
	}
	if status.EncryptionConfigured {
		t.Errorf("expected encryption to be unconfigured")
	}
	if !strings.Contains(status.Message, "requires") {
		t.Errorf("expected message naming the missing pieces, got %q", status.Message)
	}
}

func TestComputeStatusMissingRepo(t *testing.T) {
	settings := config.NewDefault()
	settings.RepoPath = filepath.Join(t.TempDir(), "nonexistent")
	settings.WorkspacePath = t.TempDir()
	settings.EncryptionKey = "secret"

	status := ComputeStatus(context.Background(), settings, "")
	if !status.Configured {
		t.Errorf("expected configured status")
	}
	if status.Message != "Sync repository does not exist" {
		t.Errorf("unexpected message: %q", status.Message)
	}
}

func TestComputeStatusWorkspaceOverrideWins(t *testing.T) {
	settings := config.NewDefault()
	settings.WorkspacePath = "/from/settings"

	status := ComputeStatus(context.Background(), settings, "/from/override")
	if status.WorkspacePath != "/from/override" {
		t.Errorf("expected override to win, got %q", status.WorkspacePath)
	}
}

func TestComputeStatusAfterPush(t *testing.T) {
	skipIfNoGit(t)
	engine, cfg := newTestEngine(t, 5)
	ctx := context.Background()

	result, err := engine.Push(ctx)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	settings := config.NewDefault()
	settings.RepoPath = cfg.RepoPath
	settings.WorkspacePath = cfg.WorkspacePath
	settings.EncryptionKey = cfg.EncryptionKey

	status := ComputeStatus(ctx, settings, "")
	if !status.Configured {
		t.Fatalf("expected configured status, message: %q", status.Message)
	}
	if status.LatestBackupFile != result.BackupFile {
		t.Errorf("expected latest backup %q, got %q", result.BackupFile, status.LatestBackupFile)
	}
	if status.LatestBackupAt == nil {
		t.Errorf("expected a latest backup timestamp")
	}
	if status.HasPendingCommits {
		t.Errorf("expected a clean tree right after push")
	}
	if status.HasRemote {
		t.Errorf("expected no remote to be configured")
	}
	if status.Message != "" {
		t.Errorf("expected empty message, got %q", status.Message)
	}
}
