// Package archive builds and unpacks the gzip-compressed tape archive that
// a snapshot wraps. Building walks the workspace sequentially; compression
// itself is parallelized inside pgzip.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"

	"github.com/AustinKelsay/gtdsync/pkg/plog"
	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// MarkerDirName is the sync-internal state directory excluded from every
// snapshot, alongside git's own control directory.
const MarkerDirName = ".gtdsync"

// ErrNotADirectory reports an archive root that is missing or not a directory.
var ErrNotADirectory = errors.New("archive root is not a directory")

// skipComponents are path components that exclude an entry (and its subtree)
// from the archive.
var skipComponents = map[string]bool{
	".git":        true,
	MarkerDirName: true,
}

// shouldSkip reports whether a relative, slash-normalized path contains a
// component that must never be archived.
func shouldSkip(relPathKey string) bool {
	for _, component := range strings.Split(relPathKey, "/") {
		if skipComponents[component] {
			return true
		}
	}
	return false
}

// Build walks the workspace root and returns a gzip-compressed tar stream.
// The root itself is not an entry; all names are stored relative to it.
// The filesystem is only read, never mutated.
func Build(workspaceRoot string) ([]byte, error) {
	info, err := os.Stat(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotADirectory, workspaceRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, workspaceRoot)
	}

	var buf bytes.Buffer
	gzWriter := pgzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)

	walkErr := filepath.WalkDir(workspaceRoot, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk workspace at %s: %w", absPath, err)
		}
		if absPath == workspaceRoot {
			return nil
		}

		rel, err := filepath.Rel(workspaceRoot, absPath)
		if err != nil {
			return fmt.Errorf("failed to determine relative path for %s: %w", absPath, err)
		}
		relPathKey := util.NormalizePath(rel)

		if shouldSkip(relPathKey) {
			if d.IsDir() {
				plog.Debug("Skipping directory during archive", "path", relPathKey)
				return filepath.SkipDir
			}
			return nil
		}

		entryInfo, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", absPath, err)
		}

		switch {
		case entryInfo.IsDir():
			return writeDir(tarWriter, relPathKey, entryInfo)
		case entryInfo.Mode()&os.ModeSymlink != 0:
			return writeSymlink(tarWriter, absPath, relPathKey, entryInfo)
		case entryInfo.Mode().IsRegular():
			return writeFile(tarWriter, absPath, relPathKey, entryInfo)
		default:
			// Sockets, devices and the like have no place in a document workspace.
			plog.Debug("Skipping irregular file during archive", "path", relPathKey, "mode", entryInfo.Mode().String())
			return nil
		}
	})
	if walkErr != nil {
		tarWriter.Close()
		gzWriter.Close()
		return nil, walkErr
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

func writeDir(tw *tar.Writer, relPathKey string, info os.FileInfo) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", relPathKey, err)
	}
	header.Name = relPathKey + "/"
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to append directory %s: %w", relPathKey, err)
	}
	return nil
}

func writeSymlink(tw *tar.Writer, absPath, relPathKey string, info os.FileInfo) error {
	linkTarget, err := os.Readlink(absPath)
	if err != nil {
		return fmt.Errorf("failed to read link %s: %w", absPath, err)
	}
	header, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", relPathKey, err)
	}
	header.Name = relPathKey
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to append symlink %s: %w", relPathKey, err)
	}
	return nil
}

func writeFile(tw *tar.Writer, absPath, relPathKey string, info os.FileInfo) error {
	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", relPathKey, err)
	}
	header.Name = relPathKey
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", relPathKey, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to append file %s: %w", relPathKey, err)
	}
	return nil
}

// Extract unpacks an archive produced by Build into targetDir, which must
// already exist. Decompression uses klauspost/compress's gzip reader, the
// pgzip-recommended pairing for the read side.
func Extract(data []byte, targetDir string) error {
	gzReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to open compressed archive: %w", err)
	}
	defer gzReader.Close()

	cleanTarget := filepath.Clean(targetDir)
	tr := tar.NewReader(gzReader)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive entry: %w", err)
		}

		// Security: Zip Slip protection. Entries must land inside targetDir;
		// reject names that escape via "../".
		relPath := util.NormalizePath(header.Name)
		absTarget := filepath.Join(cleanTarget, relPath)
		if !strings.HasPrefix(absTarget, cleanTarget+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", header.Name)
		}

		// Security: Strip SUID and SGID bits to prevent privilege escalation.
		mode := os.FileMode(header.Mode) &^ (os.ModeSetuid | os.ModeSetgid)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(absTarget, mode); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", absTarget, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(absTarget), util.UserWritableDirPerms); err != nil {
				return fmt.Errorf("failed to create parent directory for %s: %w", absTarget, err)
			}

			// Security: Remove any existing entry to prevent following a
			// symlink created by a previous entry (Symlink Interception).
			_ = os.Remove(absTarget)

			outFile, err := os.OpenFile(absTarget, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", absTarget, err)
			}
			_, copyErr := io.Copy(outFile, tr)
			closeErr := outFile.Close()
			if copyErr != nil {
				return fmt.Errorf("failed to write file %s: %w", absTarget, copyErr)
			}
			if closeErr != nil {
				return fmt.Errorf("failed to close file %s: %w", absTarget, closeErr)
			}
			os.Chtimes(absTarget, header.AccessTime, header.ModTime)
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(absTarget), util.UserWritableDirPerms); err != nil {
				return fmt.Errorf("failed to create parent directory for %s: %w", absTarget, err)
			}
			_ = os.Remove(absTarget)
			if err := os.Symlink(header.Linkname, absTarget); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", absTarget, err)
			}
		default:
			plog.Debug("Skipping unsupported archive entry", "path", header.Name, "type", header.Typeflag)
		}
	}
	return nil
}
