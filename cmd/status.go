package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AustinKelsay/gtdsync/pkg/config"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/syncer"
)

// RunStatus handles the logic for the 'status' command. It never modifies
// the repository or the workspace.
func RunStatus(ctx context.Context, flagMap map[string]interface{}) error {
	path, err := settingsPath(flagMap)
	if err != nil {
		return err
	}

	settings, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if level, ok := flagMap["log-level"].(string); ok {
		settings.LogLevel = level
	}
	plog.SetLevel(plog.LevelFromString(settings.LogLevel))

	workspaceOverride, _ := flagMap["workspace"].(string)
	status := syncer.ComputeStatus(ctx, settings, workspaceOverride)

	asJSON, _ := flagMap["json"].(bool)
	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	logArgs := []interface{}{
		"enabled", status.Enabled,
		"configured", status.Configured,
		"encryption_configured", status.EncryptionConfigured,
		"has_remote", status.HasRemote,
		"pending_commits", status.HasPendingCommits,
	}
	if status.LatestBackupFile != "" {
		logArgs = append(logArgs, "latest_backup", status.LatestBackupFile)
	}
	if status.LatestBackupAt != nil {
		logArgs = append(logArgs, "latest_backup_at", status.LatestBackupAt.Format("2006-01-02 15:04:05 MST"))
	}
	if status.LastPush != nil {
		logArgs = append(logArgs, "last_push", status.LastPush.Format("2006-01-02 15:04:05 MST"))
	}
	if status.LastPull != nil {
		logArgs = append(logArgs, "last_pull", status.LastPull.Format("2006-01-02 15:04:05 MST"))
	}
	if status.Message != "" {
		logArgs = append(logArgs, "message", status.Message)
	}
	plog.Info("Sync status", logArgs...)
	return nil
}
