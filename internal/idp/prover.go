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

package idp

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/keys"
	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/vkd"
)

// Prover holds the directory handle and turns sealed batches into signed
// PublishNotifications. The directory's own persisted epoch counter is the
// single source of truth for the sequence number: the Prover never keeps
// an independent counter that could drift from it.
type Prover struct {
	dir    *vkd.Directory
	priv   *keys.PrivateKey
	secure *store.Store
	out    chan<- *api.Notification
}

// NewProver constructs a Prover. secure is the IdP's secure storage (the
// single persisted "last notification" record); out is the channel the
// Publisher consumes notifications from.
func NewProver(dir *vkd.Directory, priv *keys.PrivateKey, secure *store.Store, out chan<- *api.Notification) *Prover {
	return &Prover{dir: dir, priv: priv, secure: secure, out: out}
}

// sign produces a fully-formed, signed Notification for a committed
// epoch/root/proof triple.
func (p *Prover) sign(root api.Root, seq uint64, proof api.AuditProof) *api.Notification {
	id := api.ComputeDigest(root, seq)
	return &api.Notification{
		Root:           root,
		Proof:          proof,
		SequenceNumber: seq,
		ID:             id,
		Signature:      p.priv.Sign(id),
	}
}

// Recover runs at startup: if a last-notification record exists it is
// deserialized and handed to the Publisher for idempotent rebroadcast
// (witnesses tolerate a replay of a notification they've already voted
// on). If the directory's committed epoch has advanced past the persisted
// notification's sequence number - the narrow crash window between a
// directory publish committing and the notification record being written
// - that gap is logged; the next on_batch will still move the directory
// forward correctly since it always reads the epoch from the directory
// itself.
func (p *Prover) Recover(ctx context.Context) error {
	raw, err := p.secure.Get(store.SecureKey)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("idp: read last notification: %w", err)
	}
	n := &api.Notification{}
	if err := n.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("idp: deserialize last notification: %w", err)
	}

	epoch, err := p.dir.CurrentEpoch()
	if err != nil {
		return fmt.Errorf("idp: read directory epoch: %w", err)
	}
	if epoch != n.SequenceNumber {
		klog.Warningf("idp: recovered notification for sequence %d but directory is at epoch %d; the directory publish committed but the notification record was not updated before a prior crash", n.SequenceNumber, epoch)
	}

	klog.Infof("idp: replaying last notification for sequence %d", n.SequenceNumber)
	select {
	case p.out <- n:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// OnBatch applies a sealed batch to the directory, advances the epoch,
// and emits a signed Notification to the Publisher.
func (p *Prover) OnBatch(ctx context.Context, batch Batch) error {
	entries := make([][]byte, len(batch.Entries))
	for i, e := range batch.Entries {
		b, err := e.MarshalBinary()
		if err != nil {
			return fmt.Errorf("idp: serialize batch entry %d: %w", i, err)
		}
		entries[i] = b
	}

	root, proof, seq, err := p.dir.Publish(entries)
	if err != nil {
		// A storage write with no defined recovery here is the kind of
		// fault the design treats as fatal, not retryable.
		klog.Exitf("idp: directory publish failed irrecoverably: %v", err)
	}

	n := p.sign(root, seq, proof)

	select {
	case p.out <- n:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Run drains sealed batches from in and applies each via OnBatch, in
// order, preserving the Batcher's ordering guarantee.
func (p *Prover) Run(ctx context.Context, in <-chan Batch) {
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return
			}
			if err := p.OnBatch(ctx, b); err != nil {
				klog.Warningf("idp: OnBatch: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
