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
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/transport"
)

// newCertificateReq persists a newly-assembled certificate and acks once
// durable, matching the Publisher's "hand it to the Synchronizer (which
// persists it and returns an ack)" contract.
type newCertificateReq struct {
	sequence   uint64
	serialized []byte
	ack        chan struct{}
}

// SyncTrigger asks the Synchronizer to push every certificate the target
// witness is missing, starting at witnessSeq. If retry is non-nil, the
// Synchronizer reliably resends it to the same witness once the catch-up
// sends have all been issued, and delivers the reply on reply (used by the
// Publisher to resume waiting for that witness's vote).
type SyncTrigger struct {
	Target     string
	WitnessSeq uint64
	Retry      []byte
	reply      chan transport.Result
}

// Synchronizer owns the certificate log and a per-witness in-flight send
// counter bounded by M: a Byzantine witness that never replies cannot
// exhaust IdP memory, because the Synchronizer simply stops issuing new
// sync sends to it once M are outstanding.
type Synchronizer struct {
	log    *store.Store
	sender *transport.ReliableSender
	maxM   int

	mu       sync.Mutex
	inFlight map[string]int

	currentSeq atomic.Uint64

	newCertCh chan newCertificateReq
	triggerCh chan SyncTrigger
}

// NewSynchronizer builds a Synchronizer. log is the IdP's sync storage
// (sequence_number -> serialized certificate message); maxInFlight is M.
func NewSynchronizer(log *store.Store, sender *transport.ReliableSender, maxInFlight int) *Synchronizer {
	return &Synchronizer{
		log:       log,
		sender:    sender,
		maxM:      maxInFlight,
		inFlight:  make(map[string]int),
		newCertCh: make(chan newCertificateReq),
		triggerCh: make(chan SyncTrigger, 64),
	}
}

// CurrentSequence returns the highest sequence number durably logged.
func (s *Synchronizer) CurrentSequence() uint64 { return s.currentSeq.Load() }

// NotifyCertificate hands a newly-assembled certificate to the
// Synchronizer and blocks until it is durably persisted.
func (s *Synchronizer) NotifyCertificate(ctx context.Context, seq uint64, serialized []byte) error {
	req := newCertificateReq{sequence: seq, serialized: serialized, ack: make(chan struct{})}
	select {
	case s.newCertCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerSync asks the Synchronizer to catch up a witness, optionally
// retrying a payload afterwards. When retry is non-nil the returned
// channel delivers exactly one transport.Result once the retried send
// resolves; otherwise it returns nil.
func (s *Synchronizer) TriggerSync(ctx context.Context, target string, witnessSeq uint64, retry []byte) <-chan transport.Result {
	trig := SyncTrigger{Target: target, WitnessSeq: witnessSeq, Retry: retry}
	if retry != nil {
		trig.reply = make(chan transport.Result, 1)
	}
	select {
	case s.triggerCh <- trig:
	case <-ctx.Done():
		if trig.reply != nil {
			close(trig.reply)
		}
	}
	return trig.reply
}

// Run drives the Synchronizer until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	for {
		select {
		case req := <-s.newCertCh:
			if err := s.log.Put(store.SequenceKey(req.sequence), req.serialized); err != nil {
				klog.Exitf("idp: failed to persist certificate at sequence %d: %v", req.sequence, err)
			}
			if cur := s.currentSeq.Load(); req.sequence > cur {
				s.currentSeq.Store(req.sequence)
			}
			close(req.ack)
		case trig := <-s.triggerCh:
			go s.handleTrigger(ctx, trig)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Synchronizer) acquireSlot(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[target] >= s.maxM {
		return false
	}
	s.inFlight[target]++
	return true
}

func (s *Synchronizer) releaseSlot(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[target] > 0 {
		s.inFlight[target]--
	}
}

func (s *Synchronizer) handleTrigger(ctx context.Context, trig SyncTrigger) {
	current := s.currentSeq.Load()
	for seq := trig.WitnessSeq; seq <= current; seq++ {
		if !s.acquireSlot(trig.Target) {
			klog.V(1).Infof("idp: in-flight window full for %s, deferring remaining sync sends", trig.Target)
			break
		}
		data, err := s.log.Get(store.SequenceKey(seq))
		if err != nil {
			s.releaseSlot(trig.Target)
			klog.Warningf("idp: missing certificate at sequence %d: %v", seq, err)
			continue
		}
		h := s.sender.Send(ctx, trig.Target, data)
		go func() {
			h.Wait(ctx)
			s.releaseSlot(trig.Target)
		}()
	}

	if trig.Retry == nil {
		return
	}
	h := s.sender.Send(ctx, trig.Target, trig.Retry)
	resp, err := h.Wait(ctx)
	if trig.reply != nil {
		trig.reply <- transport.Result{Response: resp, Err: err}
		close(trig.reply)
	}
}
