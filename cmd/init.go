package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/AustinKelsay/gtdsync/pkg/buildinfo"
	"github.com/AustinKelsay/gtdsync/pkg/config"
	"github.com/AustinKelsay/gtdsync/pkg/gitcmd"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// RunInit handles the logic for the 'init' command: it writes a settings
// file from the provided flags and initializes the sync repository when
// enough configuration is present.
func RunInit(ctx context.Context, flagMap map[string]interface{}) error {
	path, err := settingsPath(flagMap)
	if err != nil {
		return err
	}

	force, _ := flagMap["force"].(bool)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("settings file already exists at %s (use -force to overwrite)", path)
	}

	settings := config.MergeSettingsWithFlags(config.NewDefault(), flagMap)
	plog.SetLevel(plog.LevelFromString(settings.LogLevel))

	if settings.RepoPath == "" {
		return fmt.Errorf("the -repo flag is required for the init operation")
	}
	if settings.WorkspacePath == "" {
		return fmt.Errorf("the -workspace flag is required for the init operation")
	}

	if err := config.Save(path, settings); err != nil {
		return err
	}
	plog.Info("Settings file written", "path", path)

	// Initialize the repository right away so the first push starts from a
	// known-good state. The encryption key is deliberately not a flag; the
	// user adds it to the settings file afterwards.
	git := gitcmd.New(settings.RepoPath)
	if err := os.MkdirAll(settings.RepoPath, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create repository directory %s: %w", settings.RepoPath, err)
	}
	if err := git.EnsureRepo(ctx); err != nil {
		return err
	}

	plog.Info(buildinfo.Name + " initialized. Add the encryption key to the settings file before the first push.")
	return nil
}
