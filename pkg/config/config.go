// Package config loads, saves and validates the gtdsync settings file and
// turns settings plus command-line overrides into a validated SyncConfig
// that the sync engine consumes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/buildinfo"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// SettingsFileName is the name of the settings file.
const SettingsFileName = "gtdsync.settings.json"

// Bounds for the backup retention count. Values outside are clamped, not rejected.
const (
	MinKeepHistory = 1
	MaxKeepHistory = 20
)

// DefaultBranch is used when the settings file carries no branch.
const DefaultBranch = "main"

// defaultKeepHistory is used when the settings file carries no retention count.
const defaultKeepHistory = 5

// Settings is the on-disk representation of the gtdsync configuration.
// EncryptionKey is a passphrase, so the file is written with owner-only
// permissions.
type Settings struct {
	Version       string `json:"version"`
	Enabled       bool   `json:"enabled"`
	RepoPath      string `json:"repoPath"`
	WorkspacePath string `json:"workspacePath"`
	RemoteURL     string `json:"remoteUrl"`
	Branch        string `json:"branch"`
	EncryptionKey string `json:"encryptionKey"`
	KeepHistory   int    `json:"keepHistory"`
	// Note: omitempty is intentionally not used for the author fields so
	// they appear in the generated settings file for better discoverability.
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
	LogLevel    string `json:"logLevel"`

	// Stamps of the last successful operations, updated by the engine.
	LastPush *time.Time `json:"lastPush,omitempty"`
	LastPull *time.Time `json:"lastPull,omitempty"`
}

// SyncConfig is the validated, canonicalized configuration a single sync
// operation runs with. Paths are absolute with symlinks resolved.
type SyncConfig struct {
	RepoPath      string
	WorkspacePath string
	RemoteURL     string
	Branch        string
	EncryptionKey string
	KeepHistory   int
	AuthorName    string
	AuthorEmail   string
}

// NewDefault creates and returns a Settings struct with sensible default values.
func NewDefault() Settings {
	return Settings{
		Version:       buildinfo.Version,
		Enabled:       true,
		RepoPath:      "", // Intentionally empty to force user configuration.
		WorkspacePath: "", // Intentionally empty to force user configuration.
		RemoteURL:     "",
		Branch:        DefaultBranch,
		EncryptionKey: "", // Intentionally empty to force user configuration.
		KeepHistory:   defaultKeepHistory,
		AuthorName:    "",
		AuthorEmail:   "",
		LogLevel:      "info",
	}
}

// DefaultPath returns the settings file location inside the user's config
// directory, e.g. ~/.config/gtdsync/gtdsync.settings.json on Linux.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(configDir, buildinfo.Name, SettingsFileName), nil
}

// Load attempts to load settings from the given path.
// If the file doesn't exist, it returns the default settings without an error.
// If the file exists but fails to parse, it returns an error and zero-value settings.
func Load(path string) (Settings, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil // Settings file doesn't exist, which is a normal case.
		}
		return Settings{}, fmt.Errorf("error opening settings file %s: %w", path, err)
	}
	defer file.Close()

	plog.Debug("Loading settings", "path", path)
	// Start with default values, then overwrite with the file's content.
	// This makes loading resilient to missing fields in the JSON file.
	settings := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&settings); err != nil {
		return Settings{}, fmt.Errorf("error parsing settings file %s: %w", path, err)
	}

	if settings.Version != buildinfo.Version {
		settings.Version = buildinfo.Version
	}
	return settings, nil
}

// Save writes the settings to the given path with owner-only permissions.
// The file is written to a temp file first and renamed into place so a crash
// never leaves a truncated settings file behind.
func Save(path string, settings Settings) error {
	jsonData, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings to JSON: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create settings directory %s: %w", dir, err)
	}

	tmpF, err := os.CreateTemp(dir, SettingsFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary settings file", "path", tmpF.Name(), "error", err)
		}
	}()

	if err := tmpF.Chmod(util.UserOnlyFilePerms); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to set settings file permissions: %w", err)
	}
	if _, err := tmpF.Write(jsonData); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to sync settings file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp settings file: %w", err)
	}

	if err := os.Rename(tmpF.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp file to settings file: %w", err)
	}

	plog.Debug("Saved settings file", "path", path)
	return nil
}

// MergeSettingsWithFlags overlays values from flags on top of base settings.
// It iterates over the setFlags map, which contains only the flags explicitly
// provided by the user on the command line.
func MergeSettingsWithFlags(base Settings, setFlags map[string]any) Settings {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "log-level":
			merged.LogLevel = value.(string)
		case "workspace":
			merged.WorkspacePath = value.(string)
		case "repo":
			merged.RepoPath = value.(string)
		case "remote":
			merged.RemoteURL = value.(string)
		case "branch":
			merged.Branch = value.(string)
		case "keep-history":
			merged.KeepHistory = value.(int)
		case "author-name":
			merged.AuthorName = value.(string)
		case "author-email":
			merged.AuthorEmail = value.(string)
		case "settings", "force", "json":
			// Handled by the command layer, not part of the settings.
		default:
			plog.Debug("unhandled flag in MergeSettingsWithFlags", "flag", name)
		}
	}
	return merged
}

// BuildSyncConfig validates the settings and produces the canonical
// configuration a sync operation runs with.
//
// It enforces the invariants every operation depends on: non-empty paths, an
// existing workspace directory, a creatable repository directory, a non-empty
// passphrase, a clamped retention count, and repository and workspace not
// nested inside each other (a repo inside the workspace would archive itself
// recursively).
func (s *Settings) BuildSyncConfig() (SyncConfig, error) {
	if !s.Enabled {
		return SyncConfig{}, fmt.Errorf("sync is disabled in the settings")
	}
	if strings.TrimSpace(s.RepoPath) == "" {
		return SyncConfig{}, fmt.Errorf("repository path has not been set")
	}
	if strings.TrimSpace(s.WorkspacePath) == "" {
		return SyncConfig{}, fmt.Errorf("workspace path has not been set")
	}

	encryptionKey := strings.TrimSpace(s.EncryptionKey)
	if encryptionKey == "" {
		return SyncConfig{}, fmt.Errorf("encryption key has not been set")
	}

	branch := strings.TrimSpace(s.Branch)
	if branch == "" {
		branch = DefaultBranch
	}

	keepHistory := s.KeepHistory
	if keepHistory == 0 {
		keepHistory = defaultKeepHistory
	}
	keepHistory = min(max(keepHistory, MinKeepHistory), MaxKeepHistory)

	workspacePath, err := util.CanonicalPath(s.WorkspacePath)
	if err != nil {
		return SyncConfig{}, fmt.Errorf("could not canonicalize workspace path: %w", err)
	}
	if info, err := os.Stat(workspacePath); err != nil || !info.IsDir() {
		return SyncConfig{}, fmt.Errorf("workspace path does not exist or is not a directory: %s", workspacePath)
	}

	repoPath, err := util.CanonicalPath(s.RepoPath)
	if err != nil {
		return SyncConfig{}, fmt.Errorf("could not canonicalize repository path: %w", err)
	}
	if err := os.MkdirAll(repoPath, util.UserWritableDirPerms); err != nil {
		return SyncConfig{}, fmt.Errorf("failed to create repository path %s: %w", repoPath, err)
	}

	if util.IsWithin(workspacePath, repoPath) || util.IsWithin(repoPath, workspacePath) {
		return SyncConfig{}, fmt.Errorf("repository path must be outside the workspace to avoid recursive backups")
	}

	return SyncConfig{
		RepoPath:      repoPath,
		WorkspacePath: workspacePath,
		RemoteURL:     strings.TrimSpace(s.RemoteURL),
		Branch:        branch,
		EncryptionKey: encryptionKey,
		KeepHistory:   keepHistory,
		AuthorName:    strings.TrimSpace(s.AuthorName),
		AuthorEmail:   strings.TrimSpace(s.AuthorEmail),
	}, nil
}

// LogSummary prints a user-friendly summary of the effective configuration.
// The encryption key is never logged.
func (c *SyncConfig) LogSummary() {
	logArgs := []interface{}{
		"workspace", c.WorkspacePath,
		"repo", c.RepoPath,
		"branch", c.Branch,
		"keep_history", c.KeepHistory,
	}
	if c.RemoteURL != "" {
		logArgs = append(logArgs, "remote", c.RemoteURL)
	}
	if c.AuthorName != "" {
		logArgs = append(logArgs, "author", c.AuthorName)
	}
	plog.Info("Configuration loaded", logArgs...)
}
