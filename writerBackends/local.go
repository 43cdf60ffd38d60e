package writerbackends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"clipflow/logger"
)

// LocalBackend writes objects below a base directory on the local disk.
type LocalBackend struct {
	baseDir string
}

func NewLocalBackend(accessInfo map[string]string) (*LocalBackend, error) {
	baseDir := accessInfo["baseDir"]
	if baseDir == "" {
		return nil, fmt.Errorf("missing required accessInfo key: baseDir")
	}
	return &LocalBackend{baseDir: baseDir}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Location(key string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(key))
}

func (b *LocalBackend) Write(ctx context.Context, key string, body io.Reader, opts WriteOptions) error {
	if key == "" || strings.Contains(key, "..") {
		return fmt.Errorf("invalid key %q", key)
	}
	fullPath := b.Location(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.Exclusive {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(fullPath, flags, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}

	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(fullPath)
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to close file %s: %w", fullPath, err)
	}

	logger.Debugf("Saved '%s' to '%s'", key, fullPath)
	return nil
}
