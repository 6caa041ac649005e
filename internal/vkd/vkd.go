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

// Package vkd is the verifiable key directory: a black-box append-only
// authenticated structure exposing Publish, Audit, RootAtEpoch and
// VerifyAudit. Its internals (the ZKS/VRF-labelled tree, lookup and
// history proofs) are out of scope for this repository; what remains is
// the append-only commitment and consistency-proof machinery every layer
// above it actually depends on, built the way the teacher builds an
// append-only log: a compact range over an RFC 6962 hasher.
package vkd

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/proof"
	"github.com/transparency-dev/merkle/rfc6962"
	"golang.org/x/sync/errgroup"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/store"
)

var hasher = rfc6962.DefaultHasher

var rangeFactory = &compact.RangeFactory{Hash: hasher.HashChildren}

const (
	keyTreeSize  = "Z"
	keyEpoch     = "E"
	prefixNode   = "N"
	prefixSize   = "S" // epoch -> tree size at that epoch
	prefixRoot   = "R" // epoch -> root hash at that epoch
)

// EmptyRoot is the root hash of the directory before any entry has been
// published. It is a pure function of the hasher, computable without
// touching storage.
func EmptyRoot() api.Root {
	h, err := rangeFactory.NewEmptyRange(0).GetRootHash(nil)
	if err != nil {
		panic(fmt.Errorf("vkd: empty root: %w", err))
	}
	var out api.Root
	copy(out[:], h)
	return out
}

// Directory is the append-only authenticated structure backing the
// protocol. One Directory per process; all access is serialized by mu,
// matching the spec's rule that the VKD performs one publish per epoch
// and must not interleave another.
type Directory struct {
	mu sync.Mutex
	db *store.Store
}

// Open opens (or creates) a directory backed by a Store.
func Open(db *store.Store) (*Directory, error) {
	return &Directory{db: db}, nil
}

func nodeKey(id compact.NodeID) []byte {
	b := make([]byte, len(prefixNode)+1+8)
	n := copy(b, prefixNode)
	b[n] = byte(id.Level)
	binary.BigEndian.PutUint64(b[n+1:], id.Index)
	return b
}

func epochSizeKey(epoch uint64) []byte {
	b := make([]byte, len(prefixSize)+8)
	copy(b, prefixSize)
	binary.BigEndian.PutUint64(b[len(prefixSize):], epoch)
	return b
}

func epochRootKey(epoch uint64) []byte {
	b := make([]byte, len(prefixRoot)+8)
	copy(b, prefixRoot)
	binary.BigEndian.PutUint64(b[len(prefixRoot):], epoch)
	return b
}

func (d *Directory) treeSize() (uint64, error) {
	b, err := d.db.Get([]byte(keyTreeSize))
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Directory) currentEpoch() (uint64, error) {
	b, err := d.db.Get([]byte(keyEpoch))
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Directory) getNodeHash(id compact.NodeID) ([]byte, error) {
	h, err := d.db.Get(nodeKey(id))
	if err != nil {
		return nil, fmt.Errorf("vkd: missing node %+v: %w", id, err)
	}
	return h, nil
}

// newRange reconstructs the compact.Range describing the persisted tree at
// treeSize, fetching the frontier node hashes concurrently, matching the
// teacher's TreeBuilder.newRange fan-out.
func (d *Directory) newRange(treeSize uint64) (*compact.Range, error) {
	ids := compact.RangeNodes(0, treeSize, nil)
	hashes := make([][]byte, len(ids))
	var eg errgroup.Group
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			h, err := d.getNodeHash(id)
			if err != nil {
				return err
			}
			hashes[i] = h
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return rangeFactory.NewRange(0, treeSize, hashes)
}

// Publish applies a batch of opaque entries to the directory, advancing
// the epoch by exactly one, and returns the new root together with the
// audit proof spanning the previous epoch to the new one. All storage
// mutations for this call land in a single atomic batch.
func (d *Directory) Publish(entries [][]byte) (newRoot api.Root, proofSpan api.AuditProof, newEpoch uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fromSize, err := d.treeSize()
	if err != nil {
		return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: read tree size: %w", err)
	}
	epoch, err := d.currentEpoch()
	if err != nil {
		return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: read epoch: %w", err)
	}

	baseRange, err := d.newRange(fromSize)
	if err != nil {
		return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: rebuild range at size %d: %w", fromSize, err)
	}

	var writes []store.Write
	visit := func(id compact.NodeID, hash []byte) {
		writes = append(writes, store.Write{Key: nodeKey(id), Value: append([]byte(nil), hash...)})
	}

	newEntries := rangeFactory.NewEmptyRange(fromSize)
	for _, e := range entries {
		lh := hasher.HashLeaf(e)
		if err := newEntries.Append(lh, visit); err != nil {
			return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: append entry: %w", err)
		}
	}
	if err := baseRange.AppendRange(newEntries, visit); err != nil {
		return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: merge range: %w", err)
	}

	rootHash, err := baseRange.GetRootHash(nil)
	if err != nil {
		return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: compute root: %w", err)
	}
	toSize := baseRange.End()
	toEpoch := epoch + 1

	var sizeBuf, epochBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], toSize)
	binary.BigEndian.PutUint64(epochBuf[:], toEpoch)
	writes = append(writes,
		store.Write{Key: []byte(keyTreeSize), Value: sizeBuf[:]},
		store.Write{Key: []byte(keyEpoch), Value: epochBuf[:]},
		store.Write{Key: epochSizeKey(toEpoch), Value: append([]byte(nil), sizeBuf[:]...)},
		store.Write{Key: epochRootKey(toEpoch), Value: append([]byte(nil), rootHash...)},
	)
	if fromSize == 0 && epoch == 0 {
		// Record the empty tree's nominal epoch 0 state for Audit(0, 1) to
		// find a consistency proof anchor.
		writes = append(writes,
			store.Write{Key: epochSizeKey(0), Value: []byte{0, 0, 0, 0, 0, 0, 0, 0}},
		)
	}

	if err := d.db.PutBatch(writes); err != nil {
		return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: persist batch: %w", err)
	}

	span, err := d.consistencyProof(fromSize, toSize)
	if err != nil {
		return api.Root{}, api.AuditProof{}, 0, fmt.Errorf("vkd: build audit proof: %w", err)
	}

	var out api.Root
	copy(out[:], rootHash)
	return out, span, toEpoch, nil
}

// consistencyProof builds the node-hash list proving the tree at size2 is
// the append-only successor of the tree at size1.
func (d *Directory) consistencyProof(size1, size2 uint64) (api.AuditProof, error) {
	if size1 == size2 {
		return api.AuditProof{Size1: size1, Size2: size2}, nil
	}
	nodes, err := proof.Consistency(size1, size2)
	if err != nil {
		return api.AuditProof{}, err
	}
	hashes := make([][]byte, len(nodes.IDs))
	var eg errgroup.Group
	for i, id := range nodes.IDs {
		i, id := i, id
		eg.Go(func() error {
			h, err := d.getNodeHash(id)
			if err != nil {
				return err
			}
			hashes[i] = h
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return api.AuditProof{}, err
	}
	rehashed, err := nodes.Rehash(hashes, hasher.HashChildren)
	if err != nil {
		return api.AuditProof{}, err
	}
	return api.AuditProof{Size1: size1, Size2: size2, Nodes: rehashed}, nil
}

// Audit returns a consistency proof spanning the tree states recorded at
// epoch "from" and epoch "to".
func (d *Directory) Audit(from, to uint64) (api.AuditProof, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size1, err := d.sizeAtEpoch(from)
	if err != nil {
		return api.AuditProof{}, err
	}
	size2, err := d.sizeAtEpoch(to)
	if err != nil {
		return api.AuditProof{}, err
	}
	return d.consistencyProof(size1, size2)
}

func (d *Directory) sizeAtEpoch(epoch uint64) (uint64, error) {
	if epoch == 0 {
		return 0, nil
	}
	b, err := d.db.Get(epochSizeKey(epoch))
	if err != nil {
		return 0, fmt.Errorf("vkd: unknown epoch %d: %w", epoch, err)
	}
	return binary.BigEndian.Uint64(b), nil
}

// CurrentEpoch returns the most recently committed epoch (0 if nothing has
// been published yet).
func (d *Directory) CurrentEpoch() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentEpoch()
}

// RootAtEpoch returns the committed root at the given epoch, or the empty
// root for epoch 0.
func (d *Directory) RootAtEpoch(epoch uint64) (api.Root, error) {
	if epoch == 0 {
		return EmptyRoot(), nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.db.Get(epochRootKey(epoch))
	if err != nil {
		return api.Root{}, fmt.Errorf("vkd: unknown epoch %d: %w", epoch, err)
	}
	var out api.Root
	copy(out[:], b)
	return out, nil
}

// VerifyAudit checks that proofSpan proves rootFrom (at size1 leaves) is
// the append-only predecessor of rootTo (at size2 leaves).
func VerifyAudit(rootFrom api.Root, size1 uint64, rootTo api.Root, size2 uint64, proofSpan api.AuditProof) error {
	if size1 == size2 {
		if rootFrom != rootTo {
			return api.NewProofVerificationFailed("roots differ at equal tree size")
		}
		return nil
	}
	if err := proof.VerifyConsistency(hasher, size1, size2, proofSpan.Nodes, rootFrom[:], rootTo[:]); err != nil {
		return api.NewProofVerificationFailed(err.Error())
	}
	return nil
}
