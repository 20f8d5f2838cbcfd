package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/config"
	"github.com/AustinKelsay/gtdsync/pkg/gitcmd"
	"github.com/AustinKelsay/gtdsync/pkg/history"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
)

// Status is a read-only snapshot of the sync state. Errors encountered while
// collecting it are reported through Message, never propagated.
type Status struct {
	Enabled              bool       `json:"enabled"`
	Configured           bool       `json:"configured"`
	EncryptionConfigured bool       `json:"encryptionConfigured"`
	RepoPath             string     `json:"repoPath,omitempty"`
	WorkspacePath        string     `json:"workspacePath,omitempty"`
	RemoteURL            string     `json:"remoteUrl,omitempty"`
	Branch               string     `json:"branch,omitempty"`
	LastPush             *time.Time `json:"lastPush,omitempty"`
	LastPull             *time.Time `json:"lastPull,omitempty"`
	LatestBackupFile     string     `json:"latestBackupFile,omitempty"`
	LatestBackupAt       *time.Time `json:"latestBackupAt,omitempty"`
	HasPendingCommits    bool       `json:"hasPendingCommits"`
	HasRemote            bool       `json:"hasRemote"`
	Message              string     `json:"message,omitempty"`
}

// ComputeStatus inspects the settings and the repository without modifying
// anything. It works with incomplete settings: a partially configured setup
// produces a snapshot explaining what is missing rather than an error.
func ComputeStatus(ctx context.Context, settings config.Settings, workspaceOverride string) Status {
	workspacePath := strings.TrimSpace(workspaceOverride)
	if workspacePath == "" {
		workspacePath = settings.WorkspacePath
	}

	encryptionConfigured := strings.TrimSpace(settings.EncryptionKey) != ""
	configured := settings.Enabled &&
		strings.TrimSpace(settings.RepoPath) != "" &&
		strings.TrimSpace(workspacePath) != "" &&
		encryptionConfigured

	status := Status{
		Enabled:              settings.Enabled,
		Configured:           configured,
		EncryptionConfigured: encryptionConfigured,
		RepoPath:             settings.RepoPath,
		WorkspacePath:        workspacePath,
		RemoteURL:            settings.RemoteURL,
		Branch:               settings.Branch,
		LastPush:             settings.LastPush,
		LastPull:             settings.LastPull,
	}

	switch {
	case !settings.Enabled:
		status.Message = "Sync is disabled"
		return status
	case !configured:
		status.Message = "Sync requires repo path, workspace path, and encryption key"
		return status
	}

	if _, err := os.Stat(settings.RepoPath); err != nil {
		status.Message = "Sync repository does not exist"
		return status
	}

	git := gitcmd.New(settings.RepoPath)
	backupsDir := filepath.Join(settings.RepoPath, BackupsDirName)

	latest, err := history.Latest(backupsDir)
	switch {
	case err == nil:
		status.LatestBackupFile = latest.FileName
		modified := latest.Modified
		status.LatestBackupAt = &modified
	case !errors.Is(err, history.ErrNoBackups):
		status.Message = err.Error()
		return status
	}

	if _, err := os.Stat(backupsDir); err == nil {
		out, err := git.StatusPorcelain(ctx, BackupsDirName)
		if err != nil {
			status.Message = err.Error()
			return status
		}
		status.HasPendingCommits = strings.TrimSpace(out) != ""
	} else {
		plog.Debug("Skipping git status for missing backups directory", "path", backupsDir)
	}

	status.HasRemote = git.HasRemote(ctx)
	return status
}
