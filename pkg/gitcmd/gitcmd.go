// Package gitcmd is the bridge to the external git binary. Git is treated
// as an opaque collaborator reachable on PATH: every operation is one
// synchronous subprocess invocation with the repository as its working
// directory and discrete argv tokens (no shell interpretation). Non-zero
// exits surface git's stderr verbatim; retry policy, if any, belongs to the
// caller.
package gitcmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/AustinKelsay/gtdsync/pkg/plog"
)

// RemoteName is the single remote the engine manages.
const RemoteName = "origin"

// Runner issues git commands against one repository directory.
type Runner struct {
	repoPath string

	// commandContext allows substituting os/exec for testing.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// New creates a Runner for the repository at repoPath.
func New(repoPath string) *Runner {
	return &Runner{
		repoPath:       repoPath,
		commandContext: exec.CommandContext,
	}
}

// Run executes one git command and returns its trimmed stdout. A non-zero
// exit becomes an error carrying git's stderr.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := r.commandContext(ctx, "git", args...)
	cmd.Dir = r.repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	plog.Debug("Running git command", "args", strings.Join(args, " "), "dir", r.repoPath)
	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return "", fmt.Errorf("git %s failed: %s", args[0], diag)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// EnsureRepo initializes a repository at the runner's path unless a .git
// control directory already exists.
func (r *Runner) EnsureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(r.repoPath, ".git")); err == nil {
		return nil
	}

	plog.Info("Initializing git repository for backups", "path", r.repoPath)
	_, err := r.Run(ctx, "init")
	return err
}

// HasRemote reports whether the managed remote is registered.
func (r *Runner) HasRemote(ctx context.Context) bool {
	remotes, err := r.Run(ctx, "remote")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(remotes, "\n") {
		if strings.TrimSpace(line) == RemoteName {
			return true
		}
	}
	return false
}

// EnsureRemote upserts the managed remote to point at remoteURL.
func (r *Runner) EnsureRemote(ctx context.Context, remoteURL string) error {
	var err error
	if r.HasRemote(ctx) {
		_, err = r.Run(ctx, "remote", "set-url", RemoteName, remoteURL)
	} else {
		_, err = r.Run(ctx, "remote", "add", RemoteName, remoteURL)
	}
	return err
}

// StatusPorcelain returns the porcelain status output limited to subdir.
// Empty output means the subdir has no uncommitted changes.
func (r *Runner) StatusPorcelain(ctx context.Context, subdir string) (string, error) {
	return r.Run(ctx, "status", "--porcelain", subdir)
}

// Add stages a path.
func (r *Runner) Add(ctx context.Context, path string) error {
	_, err := r.Run(ctx, "add", path)
	return err
}

// SetUser applies a repository-local commit identity. Empty values are skipped.
func (r *Runner) SetUser(ctx context.Context, name, email string) error {
	if name != "" {
		if _, err := r.Run(ctx, "config", "user.name", name); err != nil {
			return err
		}
	}
	if email != "" {
		if _, err := r.Run(ctx, "config", "user.email", email); err != nil {
			return err
		}
	}
	return nil
}

// Commit records staged changes with the given message.
func (r *Runner) Commit(ctx context.Context, message string) error {
	_, err := r.Run(ctx, "commit", "-m", message)
	return err
}

// Push publishes HEAD to branch on the managed remote, setting upstream.
func (r *Runner) Push(ctx context.Context, branch string) error {
	_, err := r.Run(ctx, "push", "-u", RemoteName, "HEAD:"+branch)
	return err
}

// Fetch updates remote-tracking state from the managed remote.
func (r *Runner) Fetch(ctx context.Context) error {
	_, err := r.Run(ctx, "fetch", RemoteName)
	return err
}

// PullFFOnly advances the local branch only when it can fast-forward; on
// divergent history git fails and that failure propagates unchanged.
func (r *Runner) PullFFOnly(ctx context.Context, branch string) error {
	_, err := r.Run(ctx, "pull", "--ff-only", RemoteName, branch)
	return err
}
