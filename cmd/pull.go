package cmd

import (
	"context"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/buildinfo"
	"github.com/AustinKelsay/gtdsync/pkg/config"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/syncer"
)

// RunPull handles the logic for the 'pull' command.
func RunPull(ctx context.Context, flagMap map[string]interface{}) error {
	path, cfg, err := loadRunConfig(flagMap)
	if err != nil {
		return err
	}
	cfg.LogSummary()

	engine := syncer.New(cfg)

	startTime := time.Now()
	result, err := engine.Pull(ctx)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}

	recordStamp(path, time.Now().UTC(), func(s *config.Settings, stamp *time.Time) {
		s.LastPull = stamp
	})

	plog.Info(buildinfo.Name+" pull finished.",
		"message", result.Message,
		"backup", result.BackupFile,
		"duration", duration,
	)
	return nil
}
