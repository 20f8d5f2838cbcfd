package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
	// UserOnlyFilePerms represents permissions for files that carry secrets, like the settings file (rw-------).
	UserOnlyFilePerms os.FileMode = 0600
)

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	// Replace the tilde with the home directory.
	return filepath.Join(home, path[1:]), nil
}

// NormalizePath converts a path to forward slashes for use as a stable key
// (archive entry names, log output). NOT for direct filesystem access.
func NormalizePath(path string) string {
	return filepath.ToSlash(path)
}

// CanonicalPath expands, absolutizes and resolves symlinks for a path.
// Symlink resolution is skipped for path components that do not exist yet.
func CanonicalPath(path string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute path for %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(abs), nil
		}
		return "", fmt.Errorf("could not resolve symlinks for %s: %w", abs, err)
	}
	return resolved, nil
}

// InvertMap returns a new map with the keys and values of m swapped.
// If multiple keys map to the same value, one of them wins.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inverted := make(map[V]K, len(m))
	for k, v := range m {
		inverted[v] = k
	}
	return inverted
}

// IsWithin reports whether child is the same path as parent or nested
// anywhere below it. Both paths must already be canonicalized.
func IsWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
