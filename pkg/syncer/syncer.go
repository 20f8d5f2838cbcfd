// Package syncer composes the archive, envelope, history, gitcmd and restore
// packages into the push, pull and status operations of the sync engine.
//
// Push and pull on the same Engine are serialized: an in-process weighted
// semaphore rejects a concurrent caller immediately, and a lock file in the
// repository directory guards against a second process.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AustinKelsay/gtdsync/pkg/archive"
	"github.com/AustinKelsay/gtdsync/pkg/config"
	"github.com/AustinKelsay/gtdsync/pkg/envelope"
	"github.com/AustinKelsay/gtdsync/pkg/gitcmd"
	"github.com/AustinKelsay/gtdsync/pkg/hints"
	"github.com/AustinKelsay/gtdsync/pkg/history"
	"github.com/AustinKelsay/gtdsync/pkg/oplock"
	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/preflight"
	"github.com/AustinKelsay/gtdsync/pkg/restore"
	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// BackupsDirName is the subdirectory of the repository that holds the
// encrypted snapshots. It is the only content the allowlist .gitignore
// lets into version control.
const BackupsDirName = "backups"

// gitignoreAllowlist ignores everything in the repository except the
// .gitignore itself and the backups directory.
var gitignoreAllowlist = []string{"*", "!.gitignore", "!" + BackupsDirName + "/", "!" + BackupsDirName + "/**"}

// Result reports the outcome of a push or pull operation. On failure the
// cause is flattened into Message so callers never need to unwrap errors.
type Result struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	BackupFile string            `json:"backupFile,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Pushed     bool              `json:"pushed"`
	Details    map[string]string `json:"details,omitempty"`
}

// Engine runs sync operations against one validated configuration.
type Engine struct {
	cfg   config.SyncConfig
	git   *gitcmd.Runner
	guard *semaphore.Weighted
}

// New creates an Engine for the given configuration.
func New(cfg config.SyncConfig) *Engine {
	return &Engine{
		cfg:   cfg,
		git:   gitcmd.New(cfg.RepoPath),
		guard: semaphore.NewWeighted(1),
	}
}

// acquire takes both serialization guards: the in-process semaphore and the
// cross-process lock file. The returned release func undoes both.
func (e *Engine) acquire() (release func(), err error) {
	if !e.guard.TryAcquire(1) {
		return nil, hints.New("a sync operation is already in progress")
	}

	lock, err := oplock.Acquire(e.cfg.RepoPath)
	if err != nil {
		e.guard.Release(1)
		var held *oplock.ErrLockHeld
		if errors.As(err, &held) {
			return nil, hints.Wrap(err)
		}
		return nil, err
	}

	return func() {
		lock.Release()
		e.guard.Release(1)
	}, nil
}

// Push archives the workspace, encrypts it, commits the snapshot and pushes
// to the remote when one is configured. The error, if any, carries the same
// cause as Result.Message.
func (e *Engine) Push(ctx context.Context) (Result, error) {
	result, err := e.push(ctx)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, err
	}
	return result, nil
}

func (e *Engine) push(ctx context.Context) (Result, error) {
	release, err := e.acquire()
	if err != nil {
		return Result{}, err
	}
	defer release()

	if err := preflight.CheckWorkspaceReadable(e.cfg.WorkspacePath); err != nil {
		return Result{}, err
	}
	if err := preflight.CheckRepoWritable(e.cfg.RepoPath); err != nil {
		return Result{}, err
	}

	if err := e.git.EnsureRepo(ctx); err != nil {
		return Result{}, err
	}
	if err := ensureGitignore(e.cfg.RepoPath); err != nil {
		return Result{}, err
	}

	backupsDir := filepath.Join(e.cfg.RepoPath, BackupsDirName)

	archiveData, err := archive.Build(e.cfg.WorkspacePath)
	if err != nil {
		return Result{}, err
	}

	encrypted, err := envelope.Encrypt(e.cfg.EncryptionKey, archiveData)
	if err != nil {
		return Result{}, err
	}

	// Fail when the snapshot cannot possibly fit; merely warn when space
	// would run low after a few more snapshots.
	if err := preflight.CheckFreeSpace(e.cfg.RepoPath, uint64(len(encrypted))); err != nil {
		return Result{}, err
	}
	if err := preflight.CheckFreeSpace(e.cfg.RepoPath, 4*uint64(len(encrypted))); err != nil {
		plog.Warn("Free space on the repository filesystem is running low", "error", err)
	}

	now := time.Now().UTC()
	slug := history.Slug(now)
	fileName := history.FileName(now)

	if err := history.Write(backupsDir, fileName, encrypted); err != nil {
		return Result{}, err
	}

	if err := history.Prune(backupsDir, e.cfg.KeepHistory); err != nil {
		// Retention is best-effort, a failed prune never fails the push.
		plog.Warn("Failed to prune backup history", "error", err)
	}

	if err := e.git.Add(ctx, BackupsDirName); err != nil {
		return Result{}, err
	}

	statusOut, err := e.git.StatusPorcelain(ctx, BackupsDirName)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(statusOut) == "" {
		plog.Info("Nothing changed since the last snapshot", "backup", fileName)
		return Result{
			Success:    true,
			Message:    "Backup already up to date",
			BackupFile: fileName,
			Timestamp:  now,
			Pushed:     false,
		}, nil
	}

	if err := e.git.SetUser(ctx, e.cfg.AuthorName, e.cfg.AuthorEmail); err != nil {
		return Result{}, err
	}
	if err := e.git.Commit(ctx, "sync: backup "+slug); err != nil {
		return Result{}, err
	}

	pushed := false
	if e.cfg.RemoteURL != "" {
		if err := e.git.EnsureRemote(ctx, e.cfg.RemoteURL); err != nil {
			return Result{}, err
		}
		if err := e.git.Push(ctx, e.cfg.Branch); err != nil {
			return Result{}, err
		}
		pushed = true
	}

	plog.Notice("PUSH", "backup", fileName, "pushed", pushed)
	return Result{
		Success:    true,
		Message:    "Encrypted snapshot created",
		BackupFile: fileName,
		Timestamp:  now,
		Pushed:     pushed,
		Details: map[string]string{
			"repoPath":      e.cfg.RepoPath,
			"workspacePath": e.cfg.WorkspacePath,
			"branch":        e.cfg.Branch,
		},
	}, nil
}

// Pull fetches the latest snapshot (from the remote when configured),
// decrypts it and restores the workspace from it.
func (e *Engine) Pull(ctx context.Context) (Result, error) {
	result, err := e.pull(ctx)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, err
	}
	return result, nil
}

func (e *Engine) pull(ctx context.Context) (Result, error) {
	release, err := e.acquire()
	if err != nil {
		return Result{}, err
	}
	defer release()

	if err := preflight.CheckRepoWritable(e.cfg.RepoPath); err != nil {
		return Result{}, err
	}
	if err := e.git.EnsureRepo(ctx); err != nil {
		return Result{}, err
	}

	backupsDir := filepath.Join(e.cfg.RepoPath, BackupsDirName)
	if err := os.MkdirAll(backupsDir, util.UserWritableDirPerms); err != nil {
		return Result{}, fmt.Errorf("failed to create backups directory: %w", err)
	}

	if e.cfg.RemoteURL != "" {
		if err := e.git.EnsureRemote(ctx, e.cfg.RemoteURL); err != nil {
			return Result{}, err
		}
		if err := e.git.Fetch(ctx); err != nil {
			return Result{}, err
		}
		if err := e.git.PullFFOnly(ctx, e.cfg.Branch); err != nil {
			return Result{}, err
		}
	}

	if err := ensureGitignore(e.cfg.RepoPath); err != nil {
		return Result{}, err
	}

	latest, err := history.Latest(backupsDir)
	if err != nil {
		return Result{}, err
	}

	backupPath := filepath.Join(backupsDir, latest.FileName)
	encrypted, err := os.ReadFile(backupPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read backup %s: %w", backupPath, err)
	}

	decrypted, err := envelope.Decrypt(e.cfg.EncryptionKey, encrypted)
	if err != nil {
		return Result{}, err
	}

	if err := restore.Restore(e.cfg.WorkspacePath, decrypted); err != nil {
		return Result{}, err
	}

	plog.Notice("PULL", "backup", latest.FileName)
	return Result{
		Success:    true,
		Message:    "Workspace restored from encrypted backup",
		BackupFile: latest.FileName,
		Timestamp:  latest.Modified,
		Pushed:     false,
		Details: map[string]string{
			"workspacePath": e.cfg.WorkspacePath,
		},
	}, nil
}

// ensureGitignore writes the allowlist .gitignore on first use and appends
// any missing allowlist lines on later runs. User additions are preserved,
// the file is never rewritten.
func ensureGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	existing, err := os.ReadFile(gitignorePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read .gitignore: %w", err)
		}
		var sb strings.Builder
		sb.WriteString("# Generated by gtdsync\n")
		for _, line := range gitignoreAllowlist {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		if err := os.WriteFile(gitignorePath, []byte(sb.String()), util.UserWritableFilePerms); err != nil {
			return fmt.Errorf("failed to write .gitignore: %w", err)
		}
		return nil
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, line := range gitignoreAllowlist {
		if !present[line] {
			missing = append(missing, line)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return fmt.Errorf("failed to open .gitignore for append: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		sb.WriteString("\n")
	}
	for _, line := range missing {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to append to .gitignore: %w", err)
	}
	return nil
}
