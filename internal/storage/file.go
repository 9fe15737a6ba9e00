package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const (
	keyFileName  = "vault.key"
	blobFileName = "accounts.json"
)

// FileBackend stores the key and blob as two files inside a dedicated
// directory. The directory is created with 0700 if absent and both files are
// written with 0600. Writes use temp file + rename for crash safety.
type FileBackend struct {
	dir string
}

// Compile-time check to ensure FileBackend implements Backend
var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a FileBackend rooted at dir, creating the directory
// with owner-only permissions if it does not exist.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &FileBackend{dir: dir}, nil
}

// ReadKey returns the raw key file contents, or ErrNotFound if absent.
func (f *FileBackend) ReadKey(ctx context.Context) ([]byte, error) {
	return f.read(ctx, keyFileName)
}

// WriteKey persists the key file with owner-only permissions.
func (f *FileBackend) WriteKey(ctx context.Context, key []byte) error {
	return f.write(ctx, keyFileName, key)
}

// ReadBlob returns the encrypted blob file contents, or ErrNotFound if absent.
func (f *FileBackend) ReadBlob(ctx context.Context) ([]byte, error) {
	return f.read(ctx, blobFileName)
}

// WriteBlob persists the encrypted blob file with owner-only permissions.
func (f *FileBackend) WriteBlob(ctx context.Context, blob []byte) error {
	return f.write(ctx, blobFileName, blob)
}

func (f *FileBackend) read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.dir, name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", path, info.Mode().Perm())
	}

	return os.ReadFile(path)
}

// write overwrites the whole file atomically via temp file + rename.
func (f *FileBackend) write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(f.dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if err := tempFile.Chmod(0600); err != nil {
		return err
	}
	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempName, filepath.Join(f.dir, name))
}
