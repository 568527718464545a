// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers = []byte("users")
	bucketMeta  = []byte("meta")

	keyInitialized = []byte("initialized")
	keyUpdatedAt   = []byte("updated_at")
)

// BoltBackend keeps one cbor-encoded Record per key in a bbolt bucket.
//
// Write drops and rebuilds the bucket inside a single update transaction,
// so readers observe either the old mapping or the new one. bbolt holds an
// exclusive file lock while the database is open, which keeps a second
// process out entirely.
type BoltBackend struct {
	db *bbolt.DB
}

var _ Backend = (*BoltBackend)(nil)

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrStorage, err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init buckets: %w", ErrStorage, err)
	}
	return &BoltBackend{db: db}, nil
}

// Read implements Backend.
func (b *BoltBackend) Read(ctx context.Context) (Users, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users Users
	err := b.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil || meta.Get(keyInitialized) == nil {
			return ErrNotFound
		}
		users = Users{}
		bucket := tx.Bucket(bucketUsers)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec Record
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			users[string(k)] = rec
			return nil
		})
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return users, nil
}

// Write implements Backend.
func (b *BoltBackend) Write(ctx context.Context, users Users) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers) != nil {
			if err := tx.DeleteBucket(bucketUsers); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(bucketUsers)
		if err != nil {
			return err
		}
		for name, rec := range users {
			data, err := cbor.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode %q: %w", name, err)
			}
			if err := bucket.Put([]byte(name), data); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyInitialized, []byte{1}); err != nil {
			return err
		}
		stamp, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return meta.Put(keyUpdatedAt, stamp)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Close implements Backend.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
