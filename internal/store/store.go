// Copyright 2025 The Witness Quorum Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides a durable key/value driver for the four persisted
// layouts named in the wire protocol: IdP secure storage, IdP sync storage,
// witness secure storage, and witness audit storage. Each is an instance of
// the same BadgerDB-backed Store, opened against its own directory.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: not found")

// SecureKey is the fixed key under which the IdP's last notification and
// the witness's WitnessState are stored.
var SecureKey = []byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// SequenceKey encodes a sequence number as its 8-byte little-endian key, as
// used by the sync/audit storage layouts.
func SequenceKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.LittleEndian.PutUint64(k, seq)
	return k
}

// Store is a durable key/value driver: opaque byte blobs in, opaque byte
// blobs out. internal/vkd, internal/idp and internal/witness hold Stores
// directly; the committee and transport layers never see one.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a Badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // the teacher's antispam driver does the same: klog covers our logging needs.
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads the value at key, returning ErrNotFound if absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put writes a single key/value pair atomically.
func (s *Store) Put(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Write is one (key, value) pair to be written as part of an atomic batch.
type Write struct {
	Key, Value []byte
}

// PutBatch writes every entry through a single Badger transaction, so a
// crash mid-batch leaves either all or none of the writes durable. This is
// what closes the non-atomic batch_set gap: a directory publish touching
// many tree nodes commits as one transaction, not one write per node.
func (s *Store) PutBatch(writes []Write) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			if err := txn.Set(w.Key, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
}
