package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrTraversal is returned for user paths that climb out of their base.
	ErrTraversal = errors.New("path traversal detected")
	// ErrOutsideBase is returned when a file resolves outside its base directory.
	ErrOutsideBase = errors.New("file path is outside base directory")
)

// CleanUserPath cleans a user-provided relative path and rejects any ".."
// component. Absolute paths are accepted as given. The result uses forward
// slashes.
func CleanUserPath(p string) (string, error) {
	c := filepath.Clean(p)
	for _, part := range strings.Split(filepath.ToSlash(c), "/") {
		if part == ".." {
			return "", ErrTraversal
		}
	}
	return filepath.ToSlash(c), nil
}

// Contained resolves filePath and verifies it stays inside baseDir. The
// absolute path is returned.
func Contained(baseDir, filePath string) (string, error) {
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	fileAbs, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	rel, err := filepath.Rel(baseAbs, fileAbs)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideBase
	}
	return fileAbs, nil
}

// ReadFileContained reads a file only if it is contained within baseDir.
func ReadFileContained(baseDir, filePath string) ([]byte, error) {
	abs, err := Contained(baseDir, filePath)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- abs verified to be inside baseDir
	return os.ReadFile(abs)
}

// WriteFilePreservePerms writes data to path, keeping the existing file mode
// when the file is already there and 0644 otherwise. Parent directories are
// created as needed.
func WriteFilePreservePerms(path string, data []byte) error {
	var mode os.FileMode = 0o644
	if st, err := os.Stat(path); err == nil {
		if m := st.Mode() & 0o777; m != 0 {
			mode = m
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, mode)
}
