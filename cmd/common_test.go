package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/config"
)

func TestRecordStampUpdatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.SettingsFileName)
	if err := config.Save(path, config.NewDefault()); err != nil {
		t.Fatal(err)
	}

	stamp := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	recordStamp(path, stamp, func(s *config.Settings, ts *time.Time) {
		s.LastPush = ts
	})

	settings, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if settings.LastPush == nil || !settings.LastPush.Equal(stamp) {
		t.Errorf("expected lastPush %v, got %v", stamp, settings.LastPush)
	}
}

func TestRecordStampIgnoresMissingFile(t *testing.T) {
	// A flag-driven run without a settings file must not create one.
	path := filepath.Join(t.TempDir(), config.SettingsFileName)

	recordStamp(path, time.Now(), func(s *config.Settings, ts *time.Time) {
		s.LastPush = ts
	})

	if _, err := config.Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Load returns defaults for a missing file; verify it is still missing.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("recordStamp created a settings file for a flag-driven run")
	}
}
