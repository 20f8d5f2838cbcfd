package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/config"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
)

// settingsPath resolves the settings file location: the -settings flag when
// given, the user config directory otherwise.
func settingsPath(flagMap map[string]interface{}) (string, error) {
	if path, ok := flagMap["settings"].(string); ok && path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// loadRunConfig loads the settings file, overlays the command-line flags and
// produces the validated configuration a sync operation runs with.
func loadRunConfig(flagMap map[string]interface{}) (string, config.SyncConfig, error) {
	path, err := settingsPath(flagMap)
	if err != nil {
		return "", config.SyncConfig{}, err
	}

	settings, err := config.Load(path)
	if err != nil {
		return "", config.SyncConfig{}, fmt.Errorf("failed to load settings: %w", err)
	}

	merged := config.MergeSettingsWithFlags(settings, flagMap)

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(merged.LogLevel))

	cfg, err := merged.BuildSyncConfig()
	if err != nil {
		return "", config.SyncConfig{}, err
	}
	return path, cfg, nil
}

// recordStamp updates the lastPush or lastPull stamp in the settings file.
// It is best-effort: a missing settings file (flag-driven run) or a write
// failure is logged, never propagated.
func recordStamp(path string, stamp time.Time, update func(*config.Settings, *time.Time)) {
	if _, err := os.Stat(path); err != nil {
		return // No settings file to update.
	}

	settings, err := config.Load(path)
	if err != nil {
		plog.Warn("Failed to reload settings to record timestamp", "path", path, "error", err)
		return
	}
	update(&settings, &stamp)
	if err := config.Save(path, settings); err != nil {
		plog.Warn("Failed to save settings with updated timestamp", "path", path, "error", err)
	}
}
