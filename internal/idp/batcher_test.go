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
)

func marshalUpdate(t *testing.T, label, value string) []byte {
	t.Helper()
	req := &api.UpdateRequest{Label: []byte(label), Value: []byte(value)}
	b, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return b
}

func TestBatcherSealsOnSize(t *testing.T) {
	out := make(chan Batch, 4)
	b := NewBatcher(2, time.Hour, 8, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	if err := b.Submit(ctx, marshalUpdate(t, "a", "1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := b.Submit(ctx, marshalUpdate(t, "b", "2")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case batch := <-out:
		if len(batch.Entries) != 2 {
			t.Fatalf("batch has %d entries, want 2", len(batch.Entries))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a size-sealed batch")
	}
}

func TestBatcherSealsOnAge(t *testing.T) {
	out := make(chan Batch, 4)
	b := NewBatcher(100, 20*time.Millisecond, 8, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	if err := b.Submit(ctx, marshalUpdate(t, "a", "1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case batch := <-out:
		if len(batch.Entries) != 1 {
			t.Fatalf("batch has %d entries, want 1", len(batch.Entries))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an age-sealed batch")
	}
}

func TestBatcherDropsMalformedRequests(t *testing.T) {
	out := make(chan Batch, 4)
	b := NewBatcher(1, time.Hour, 8, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	if err := b.Submit(ctx, []byte("not a valid update request")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := b.Submit(ctx, marshalUpdate(t, "a", "1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the well-formed request's batch")
	}

	deadline := time.Now().Add(time.Second)
	for b.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}
