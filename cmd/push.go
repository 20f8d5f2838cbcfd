package cmd

import (
	"context"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/buildinfo"
	"github.com/AustinKelsay/gtdsync/pkg/config"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/syncer"
)

// RunPush handles the logic for the 'push' command.
func RunPush(ctx context.Context, flagMap map[string]interface{}) error {
	path, cfg, err := loadRunConfig(flagMap)
	if err != nil {
		return err
	}
	cfg.LogSummary()

	engine := syncer.New(cfg)

	startTime := time.Now()
	result, err := engine.Push(ctx)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}

	recordStamp(path, result.Timestamp, func(s *config.Settings, stamp *time.Time) {
		s.LastPush = stamp
	})

	plog.Info(buildinfo.Name+" push finished.",
		"message", result.Message,
		"backup", result.BackupFile,
		"pushed", result.Pushed,
		"duration", duration,
	)
	return nil
}
