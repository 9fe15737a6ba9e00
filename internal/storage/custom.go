package storage

import "context"

// CustomBackend delegates each operation to a caller-supplied callback. Any
// nil callback behaves as "not found" for reads and as a no-op for writes, so
// partial capability sets are tolerated without crashing.
type CustomBackend struct {
	ReadKeyFunc   func(ctx context.Context) ([]byte, error)
	WriteKeyFunc  func(ctx context.Context, key []byte) error
	ReadBlobFunc  func(ctx context.Context) ([]byte, error)
	WriteBlobFunc func(ctx context.Context, blob []byte) error
}

// Compile-time check to ensure CustomBackend implements Backend
var _ Backend = (*CustomBackend)(nil)

// ReadKey calls ReadKeyFunc, or returns ErrNotFound if it is nil.
func (c *CustomBackend) ReadKey(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ReadKeyFunc == nil {
		return nil, ErrNotFound
	}
	return c.ReadKeyFunc(ctx)
}

// WriteKey calls WriteKeyFunc, or succeeds trivially if it is nil.
func (c *CustomBackend) WriteKey(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.WriteKeyFunc == nil {
		return nil
	}
	return c.WriteKeyFunc(ctx, key)
}

// ReadBlob calls ReadBlobFunc, or returns ErrNotFound if it is nil.
func (c *CustomBackend) ReadBlob(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ReadBlobFunc == nil {
		return nil, ErrNotFound
	}
	return c.ReadBlobFunc(ctx)
}

// WriteBlob calls WriteBlobFunc, or succeeds trivially if it is nil.
func (c *CustomBackend) WriteBlob(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.WriteBlobFunc == nil {
		return nil
	}
	return c.WriteBlobFunc(ctx, blob)
}
