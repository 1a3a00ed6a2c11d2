package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"
)

// FileBackend implements a storage backend using the local file system.
// Relative artifact names are resolved against the base directory.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// It creates the directory if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Put atomically replaces the file for name and sets its mode.
func (b *FileBackend) Put(ctx context.Context, name string, data []byte, mode os.FileMode) error {
	filePath := b.Path(name)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := atomicfile.New(filePath, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filePath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", filePath, err)
	}

	// Re-apply the mode in case the target existed with other permissions
	// and the platform kept them across the rename.
	if err := os.Chmod(filePath, mode); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", filePath, err)
	}

	b.log.Debug("Stored artifact in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)),
		slog.String("mode", mode.String()))

	return nil
}

// Exists reports whether a regular file is stored under name.
func (b *FileBackend) Exists(ctx context.Context, name string) (bool, error) {
	info, err := os.Stat(b.Path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s exists but is not a regular file", b.Path(name))
	}
	return true, nil
}

// Path returns the file path of name.
func (b *FileBackend) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(b.baseDir, name)
}

// BaseDir returns the directory relative names are resolved against.
func (b *FileBackend) BaseDir() string {
	return b.baseDir
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}
