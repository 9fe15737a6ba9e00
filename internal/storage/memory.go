package storage

import "context"

// MemoryBackend keeps both resources in process memory. Writes succeed
// trivially and nothing survives a restart; a fresh process reads ErrNotFound
// for both resources. Useful for tests and throwaway sessions.
type MemoryBackend struct {
	key  []byte
	blob []byte
}

// Compile-time check to ensure MemoryBackend implements Backend
var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// ReadKey returns the in-memory key, or ErrNotFound if never written.
func (m *MemoryBackend) ReadKey(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.key == nil {
		return nil, ErrNotFound
	}
	return m.key, nil
}

// WriteKey stores the key in memory.
func (m *MemoryBackend) WriteKey(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.key = append([]byte(nil), key...)
	return nil
}

// ReadBlob returns the in-memory blob, or ErrNotFound if never written.
func (m *MemoryBackend) ReadBlob(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.blob == nil {
		return nil, ErrNotFound
	}
	return m.blob, nil
}

// WriteBlob stores the blob in memory.
func (m *MemoryBackend) WriteBlob(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.blob = append([]byte(nil), blob...)
	return nil
}
