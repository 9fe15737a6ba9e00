package storage

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	boltBucket  = []byte("craftauth")
	boltKeyKey  = []byte("vault_key")
	boltBlobKey = []byte("accounts_blob")
)

// BoltBackend stores both resources as two entries in an externally supplied
// bbolt handle, typically the host application's own settings store. The
// backend does not own the handle and never closes it. Key bytes cross the
// key-value boundary hex-encoded.
type BoltBackend struct {
	db *bbolt.DB
}

// Compile-time check to ensure BoltBackend implements Backend
var _ Backend = (*BoltBackend)(nil)

// NewBoltBackend wraps the given bbolt handle, creating the backing bucket if
// it does not exist.
func NewBoltBackend(db *bbolt.DB) (*BoltBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("bolt handle cannot be nil")
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

// ReadKey returns the hex-decoded key entry, or ErrNotFound.
func (b *BoltBackend) ReadKey(ctx context.Context) ([]byte, error) {
	data, err := b.get(ctx, boltKeyKey)
	if err != nil {
		return nil, err
	}

	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("decoding stored key: %w", err)
	}
	return key, nil
}

// WriteKey stores the key hex-encoded.
func (b *BoltBackend) WriteKey(ctx context.Context, key []byte) error {
	return b.put(ctx, boltKeyKey, []byte(hex.EncodeToString(key)))
}

// ReadBlob returns the blob entry, or ErrNotFound.
func (b *BoltBackend) ReadBlob(ctx context.Context) ([]byte, error) {
	return b.get(ctx, boltBlobKey)
}

// WriteBlob stores the blob entry.
func (b *BoltBackend) WriteBlob(ctx context.Context, blob []byte) error {
	return b.put(ctx, boltBlobKey, blob)
}

func (b *BoltBackend) get(ctx context.Context, entry []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return ErrNotFound
		}
		data := bucket.Get(entry)
		if data == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltBackend) put(ctx context.Context, entry, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", boltBucket)
		}
		return bucket.Put(entry, value)
	})
}
