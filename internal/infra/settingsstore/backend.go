// internal/infra/settingsstore/backend.go
package settingsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backend persists the serialized document.
type Backend interface {
	// Read returns nil, nil when nothing has been persisted yet.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the persisted document atomically.
	Write(ctx context.Context, data []byte) error
	// Quarantine preserves an unreadable document and returns where it went.
	Quarantine(ctx context.Context, data []byte, at time.Time) (string, error)
}

const recoveryTimeLayout = "20060102T150405"

// FileBackend keeps the document in one JSON file.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the document location.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	return data, nil
}

func (b *FileBackend) Write(_ context.Context, data []byte) error {
	return atomicWriteFile(b.path, data)
}

// Quarantine moves the corrupt file aside as <path>.corrupt-<timestamp>.
func (b *FileBackend) Quarantine(_ context.Context, data []byte, at time.Time) (string, error) {
	target := fmt.Sprintf("%s.corrupt-%s", b.path, at.UTC().Format(recoveryTimeLayout))
	if err := os.Rename(b.path, target); err == nil {
		return target, nil
	}
	// The file may already be gone; keep the bytes we saw.
	if err := atomicWriteFile(target, data); err != nil {
		return "", fmt.Errorf("preserving corrupt settings: %w", err)
	}
	return target, nil
}

// atomicWriteFile writes to a temp file in the same directory, syncs it, then renames over filePath.
func atomicWriteFile(filePath string, data []byte) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", filePath, err)
	}
	return nil
}
