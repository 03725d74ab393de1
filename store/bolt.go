// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// bucketName holds all scoped keys. Scoping lives in the key names
// themselves, so one bucket suffices.
var bucketName = []byte("state")

// Compile-time interface check.
var _ Store = (*Bolt)(nil)

// Bolt is the durable Store, backed by a single-file bbolt database.
// A Save is one write transaction, which gives the atomic
// append-then-persist the operation log relies on.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (s *Bolt) Save(key string, value any) error {
	blob, err := encodeBlob(value)
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), blob)
	})
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func (s *Bolt) Load(key string, out any) (bool, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketName).Get([]byte(key))
		if value != nil {
			// The slice is only valid inside the transaction.
			blob = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	if blob == nil {
		return false, nil
	}
	if err := decodeBlob(blob, out); err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	return true, nil
}

func (s *Bolt) Clear(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("clearing %s: %w", key, err)
	}
	return nil
}

func (s *Bolt) Close() error {
	return s.db.Close()
}
