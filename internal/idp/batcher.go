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

// Package idp implements the IdP-side epoch-commit pipeline: Batcher,
// Prover, Aggregator, Publisher and Synchronizer.
package idp

import (
	"context"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/api"
)

// Batch is an ordered, non-empty sequence of successfully-deserialized
// update requests.
type Batch struct {
	Entries []*api.UpdateRequest
}

// Batcher seals a Batch as soon as it holds B entries, or D milliseconds
// have elapsed since the previous seal and the current batch is
// non-empty. The timer restarts on every seal. It mirrors the teacher's
// Pool: a size trigger or an age trigger, whichever comes first, with the
// age timer reset each time a batch is handed off.
type Batcher struct {
	in  chan []byte // raw, not-yet-deserialized request bytes; bounded at depth Q.
	out chan<- Batch

	size   int
	maxAge time.Duration

	dropped atomic.Uint64 // malformed requests, counted and discarded.
}

// NewBatcher constructs a Batcher. size is B, maxAge is D, queueDepth is Q
// (the bounded ingress queue that provides back-pressure to clients), and
// out is the channel the Prover consumes sealed batches from.
func NewBatcher(size int, maxAge time.Duration, queueDepth int, out chan<- Batch) *Batcher {
	return &Batcher{
		in:     make(chan []byte, queueDepth),
		out:    out,
		size:   size,
		maxAge: maxAge,
	}
}

// Submit enqueues a raw, wire-encoded UpdateRequest. It blocks (propagating
// back-pressure to the caller) when the ingress queue is full, and never
// silently drops a well-formed submission.
func (b *Batcher) Submit(ctx context.Context, raw []byte) error {
	select {
	case b.in <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many submissions failed to deserialize and were
// never sealed into a batch.
func (b *Batcher) Dropped() uint64 { return b.dropped.Load() }

// Run drives the Batcher until ctx is cancelled or the ingress channel is
// closed. It owns the current pending batch and the age timer exclusively.
func (b *Batcher) Run(ctx context.Context) {
	var current []*api.UpdateRequest

	timer := time.NewTimer(b.maxAge)
	defer timer.Stop()

	seal := func() {
		if len(current) == 0 {
			return
		}
		batch := Batch{Entries: current}
		current = nil
		select {
		case b.out <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case raw, ok := <-b.in:
			if !ok {
				seal()
				return
			}
			req := &api.UpdateRequest{}
			if err := req.UnmarshalBinary(raw); err != nil {
				b.dropped.Add(1)
				klog.V(1).Infof("idp: dropped malformed update request: %v", err)
				continue
			}
			current = append(current, req)
			if len(current) >= b.size {
				seal()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(b.maxAge)
			}
		case <-timer.C:
			seal()
			timer.Reset(b.maxAge)
		case <-ctx.Done():
			return
		}
	}
}
