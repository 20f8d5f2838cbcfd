// Package oplock provides a cross-process lock file that guards a sync
// repository against concurrent push, pull and restore operations.
//
// Sync operations are short-lived, so the lock carries no heartbeat. A
// holder writes its identity and an acquisition timestamp once; any lock
// older than the stale timeout is assumed to belong to a crashed process
// and may be taken over.
package oplock

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// LockFileName is the name of the lock file created in the repository directory.
const LockFileName = ".gtdsync.lock"

// staleTimeout is a var to allow modification during testing.
var staleTimeout = 10 * time.Minute

// lockContent is the JSON body written to the lock file.
type lockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquiredAt"`
	Nonce      string    `json:"nonce"` // Used for takeover race resolution
}

// ErrLockHeld is a structured error returned when the lock is already held
// by another live process.
type ErrLockHeld struct {
	PID      int64
	Hostname string
	Age      time.Duration
}

// Error implements the error interface for ErrLockHeld.
func (e *ErrLockHeld) Error() string {
	return fmt.Sprintf("sync already in progress, lock held by PID %d on host '%s' since %s ago", e.PID, e.Hostname, e.Age.Truncate(time.Second))
}

// errLostRace is returned when another process wins a stale lock takeover.
var errLostRace = errors.New("lost race during stale lock takeover")

// Lock represents a held repository lock. Release it when the operation ends.
type Lock struct {
	path     string
	nonce    string
	released bool
}

// Acquire attempts to create the lock file in dirPath.
// It returns (nil, *ErrLockHeld) if another live process holds the lock.
func Acquire(dirPath string) (*Lock, error) {
	lockPath := filepath.Join(dirPath, LockFileName)

	// Retry in case another process releases or crashes between our checks.
	maxAttempts := 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lock, err := tryCreate(lockPath)
		if err == nil {
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to access lock file: %w", err)
		}

		content, readErr := readContent(lockPath)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				// Holder released between our create attempt and read, retry.
				continue
			}
			// Unreadable or corrupt lock files are treated as stale.
			plog.Warn("Found corrupt lock file, treating as stale", "path", lockPath, "error", readErr)
		} else {
			age := time.Since(content.AcquiredAt)
			if age < staleTimeout {
				return nil, &ErrLockHeld{PID: content.PID, Hostname: content.Hostname, Age: age}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", content.PID, "age", age)
		}

		lock, takeoverErr := takeover(lockPath)
		if takeoverErr != nil {
			if !errors.Is(takeoverErr, errLostRace) {
				plog.Warn("Lock takeover failed, retrying", "error", takeoverErr)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		return lock, nil
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() {
	if l.released {
		return
	}
	l.released = true
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

// tryCreate attempts atomic creation using O_EXCL to guarantee
// "I created this file first".
func tryCreate(lockPath string) (*Lock, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := newContent()
	if err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock content: %w", err)
	}

	return &Lock{path: lockPath, nonce: content.Nonce}, nil
}

// takeover seizes a stale or corrupt lock with an atomic rename, then reads
// the file back to verify this process won any concurrent takeover.
func takeover(lockPath string) (*Lock, error) {
	content, err := newContent()
	if err != nil {
		return nil, err
	}

	tmpF, err := os.CreateTemp(filepath.Dir(lockPath), LockFileName+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmpF.Name(), "error", err)
		}
	}()

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		tmpF.Close()
		return nil, fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return nil, fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmpF.Name(), lockPath); err != nil {
		return nil, fmt.Errorf("failed to rename temp file to lock file: %w", err)
	}

	readback, err := readContent(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if readback.Nonce != content.Nonce {
		return nil, errLostRace
	}

	plog.Debug("Took over stale lock", "path", lockPath)
	return &Lock{path: lockPath, nonce: content.Nonce}, nil
}

func newContent() (lockContent, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return lockContent{}, err
	}
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return lockContent{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return lockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		AcquiredAt: time.Now().UTC(),
		Nonce:      fmt.Sprintf("%x", nonceBytes),
	}, nil
}

func readContent(lockPath string) (lockContent, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return lockContent{}, err
	}
	var content lockContent
	if err := json.Unmarshal(data, &content); err != nil {
		return lockContent{}, fmt.Errorf("lock file is corrupt: %w", err)
	}
	return content, nil
}
