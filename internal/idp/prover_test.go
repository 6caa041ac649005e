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
	"testing"
	"time"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/keys"
	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/vkd"
)

func newTestProver(t *testing.T) (*Prover, chan *api.Notification) {
	t.Helper()
	dataStore, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { dataStore.Close() })
	dir, err := vkd.Open(dataStore)
	if err != nil {
		t.Fatalf("vkd.Open: %v", err)
	}
	secure, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { secure.Close() })
	sk, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	out := make(chan *api.Notification, 4)
	return NewProver(dir, sk, secure, out), out
}

func TestProverOnBatchEmitsSignedNotification(t *testing.T) {
	p, out := newTestProver(t)
	batch := Batch{Entries: []*api.UpdateRequest{
		{Label: []byte("a"), Value: []byte("1")},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.OnBatch(ctx, batch); err != nil {
		t.Fatalf("OnBatch: %v", err)
	}

	select {
	case n := <-out:
		if n.SequenceNumber != 1 {
			t.Errorf("SequenceNumber = %d, want 1", n.SequenceNumber)
		}
		wantID := api.ComputeDigest(n.Root, n.SequenceNumber)
		if n.ID != wantID {
			t.Errorf("ID = %x, want %x", n.ID, wantID)
		}
		if !keys.Verify(p.priv.PublicKey, n.ID, n.Signature) {
			t.Error("notification signature does not verify")
		}
	default:
		t.Fatal("OnBatch did not emit a notification")
	}
}

func TestProverRecoverNoopWhenNothingPersisted(t *testing.T) {
	p, _ := newTestProver(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
}

func TestProverRecoverReplaysLastNotification(t *testing.T) {
	p, out := newTestProver(t)
	batch := Batch{Entries: []*api.UpdateRequest{{Label: []byte("a"), Value: []byte("1")}}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.OnBatch(ctx, batch); err != nil {
		t.Fatalf("OnBatch: %v", err)
	}
	first := <-out

	b, err := first.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if err := p.secure.Put(store.SecureKey, b); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := p.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	select {
	case replayed := <-out:
		if replayed.SequenceNumber != first.SequenceNumber || replayed.Root != first.Root {
			t.Errorf("replayed notification = %+v, want a copy of %+v", replayed, first)
		}
	default:
		t.Fatal("Recover did not replay the persisted notification")
	}
}
