package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/AustinKelsay/gtdsync/cmd"
	"github.com/AustinKelsay/gtdsync/pkg/buildinfo"
	"github.com/AustinKelsay/gtdsync/pkg/flagparse"
	"github.com/AustinKelsay/gtdsync/pkg/hints"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
)

// run encapsulates the main application logic and returns an error if something
// goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context) error {
	command, flagMap, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	switch command {
	case flagparse.Push:
		plog.Info("Starting "+buildinfo.Name, "command", "push", "version", buildinfo.Version, "pid", os.Getpid())
		return cmd.RunPush(ctx, flagMap)
	case flagparse.Pull:
		plog.Info("Starting "+buildinfo.Name, "command", "pull", "version", buildinfo.Version, "pid", os.Getpid())
		return cmd.RunPull(ctx, flagMap)
	case flagparse.Status:
		return cmd.RunStatus(ctx, flagMap)
	case flagparse.Init:
		return cmd.RunInit(ctx, flagMap)
	case flagparse.Version:
		return cmd.RunVersion(buildinfo.Name, buildinfo.Version)
	case flagparse.None:
		return nil // Help was printed.
	default:
		return fmt.Errorf("internal error: unknown command %d", command)
	}
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for interrupt signals (like Ctrl+C) in a separate goroutine.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx); err != nil {
		if hints.IsHint(err) {
			// Soft failures (another sync in progress) are not crashes,
			// but the operation did not run.
			plog.Warn(buildinfo.Name+" did not run", "reason", err)
		} else {
			plog.Error(buildinfo.Name+" exited with error", "error", err)
		}
		os.Exit(1)
	}
}
