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
	"github.com/transparency-dev/witness-quorum/internal/committee"
	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/transport"
)

// DefaultMaxConcurrentAnalyses bounds how many certificate-broadcast
// "analyze state response" passes may be in flight at once. The source
// this protocol is modeled on collects certificate-broadcast replies in
// an unbounded FuturesUnordered; that is an acknowledged gap carried
// forward from epoch to epoch. Here Publish blocks before starting a new
// analysis pass once this many are already outstanding, giving the
// Publisher the same kind of hard memory cap the Synchronizer already has
// for its per-witness in-flight window.
const DefaultMaxConcurrentAnalyses = 8

// Publisher broadcasts notifications, aggregates votes into a certificate
// once quorum is reached, persists the certificate via the Synchronizer,
// and broadcasts it.
type Publisher struct {
	committee *committee.Committee
	secure    *store.Store
	sender    *transport.ReliableSender
	sync      *Synchronizer
	agg       *Aggregator

	analyzeSem chan struct{}
}

// NewPublisher builds a Publisher. secure is the IdP's secure storage (the
// "last notification" record); maxConcurrentAnalyses bounds in-flight
// certificate-response analysis passes.
func NewPublisher(c *committee.Committee, secure *store.Store, sender *transport.ReliableSender, sync *Synchronizer, maxConcurrentAnalyses int) *Publisher {
	if maxConcurrentAnalyses <= 0 {
		maxConcurrentAnalyses = DefaultMaxConcurrentAnalyses
	}
	return &Publisher{
		committee:  c,
		secure:     secure,
		sender:     sender,
		sync:       sync,
		agg:        NewAggregator(c),
		analyzeSem: make(chan struct{}, maxConcurrentAnalyses),
	}
}

// voteReply is one resolved reply in the notification fan-in, whether from
// the original broadcast or from a sync-triggered resubmission.
type voteReply struct {
	addr string
	resp []byte
	err  error
}

// Publish drives one full epoch-commit round for a single notification:
// persist, broadcast, aggregate votes to quorum, persist and broadcast the
// resulting certificate, and analyze the certificate-broadcast replies for
// witnesses that report they are still missing earlier certificates.
func (pub *Publisher) Publish(ctx context.Context, n *api.Notification) error {
	pub.agg.Reset(n.Root, n.SequenceNumber)

	raw, err := n.MarshalBinary()
	if err != nil {
		klog.Exitf("idp: failed to serialize own notification: %v", err)
	}
	// Persisted before any broadcast: this is the single write that makes
	// crash-restart replay (Prover.Recover) possible.
	if err := pub.secure.Put(store.SecureKey, raw); err != nil {
		klog.Exitf("idp: failed to persist last notification before broadcast: %v", err)
	}

	msg := &api.IdpToWitness{Notification: n}
	payload, err := msg.MarshalBinary()
	if err != nil {
		klog.Exitf("idp: failed to serialize notification envelope: %v", err)
	}

	addrs := pub.committee.Addresses()
	cert := pub.collectVotes(ctx, payload, addrs)
	if cert == nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		klog.Exitf("idp: failed to gather a quorum of votes for sequence %d", n.SequenceNumber)
	}

	certMsg := &api.IdpToWitness{Certificate: cert}
	certPayload, err := certMsg.MarshalBinary()
	if err != nil {
		klog.Exitf("idp: failed to serialize certificate: %v", err)
	}

	if err := pub.sync.NotifyCertificate(ctx, cert.SequenceNumber, certPayload); err != nil {
		return err
	}

	handles := pub.sender.Broadcast(ctx, addrs, certPayload)

	select {
	case pub.analyzeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	go func() {
		defer func() { <-pub.analyzeSem }()
		pub.analyzeStateResponses(ctx, addrs, handles)
	}()

	return nil
}

// collectVotes fans votes in from every handle, resubmitting to any
// witness that reports it is behind, until the Aggregator reaches quorum
// or every outstanding reply (including resubmissions) has resolved.
func (pub *Publisher) collectVotes(ctx context.Context, payload []byte, addrs []string) *api.Certificate {
	replies := make(chan voteReply, 2*len(addrs)+1)
	pending := 0

	send := func(addr string, pld []byte) {
		pending++
		h := pub.sender.Send(ctx, addr, pld)
		go func() {
			resp, err := h.Wait(ctx)
			select {
			case replies <- voteReply{addr: addr, resp: resp, err: err}:
			case <-ctx.Done():
			}
		}()
	}
	for _, a := range addrs {
		send(a, payload)
	}

	var cert *api.Certificate
	for pending > 0 && cert == nil {
		r := <-replies
		pending--
		if r.err != nil {
			klog.V(1).Infof("idp: notification send to %s: %v", r.addr, r.err)
			continue
		}
		reply := &api.WitnessToIdp{}
		if err := reply.UnmarshalBinary(r.resp); err != nil {
			klog.Warningf("idp: malformed reply from %s: %v", r.addr, err)
			continue
		}
		if reply.Vote == nil {
			klog.Warningf("idp: %v", api.UnexpectedProtocolMessage(fmt.Sprintf("expected a vote reply from %s", r.addr)))
			continue
		}
		vr := reply.Vote
		if vr.Err != nil {
			switch vr.Err.Kind {
			case api.UnexpectedSequenceNumber:
				// TriggerSync expects the witness's next-expected sequence
				// number, not the notification's: the witness is behind at
				// Expected and needs certificates up to the IdP's current
				// sequence before it can vote on this notification again.
				retryCh := pub.sync.TriggerSync(ctx, r.addr, vr.Err.Expected, payload)
				if retryCh != nil {
					pending++
					go func(addr string) {
						res := <-retryCh
						select {
						case replies <- voteReply{addr: addr, resp: res.Response, err: res.Err}:
						case <-ctx.Done():
						}
					}(r.addr)
				}
			case api.ConflictingNotification:
				klog.Warningf("idp: witness %s observed an equivocating notification: lock=%x received=%x", r.addr, vr.Err.Lock, vr.Err.Received)
			default:
				klog.Warningf("idp: witness %s: %v", r.addr, vr.Err)
			}
			continue
		}
		c, aerr := pub.agg.Absorb(vr.Vote)
		if aerr != nil {
			klog.Warningf("idp: rejected vote from %s: %v", r.addr, aerr)
			continue
		}
		if c != nil {
			cert = c
		}
	}
	return cert
}

// analyzeStateResponses inspects certificate-broadcast replies for
// witnesses that report MissingEarlierCertificates and triggers a sync for
// each.
func (pub *Publisher) analyzeStateResponses(ctx context.Context, addrs []string, handles []*transport.Handle) {
	for i, h := range handles {
		resp, err := h.Wait(ctx)
		if err != nil {
			klog.V(1).Infof("idp: certificate broadcast to %s: %v", addrs[i], err)
			continue
		}
		reply := &api.WitnessToIdp{}
		if err := reply.UnmarshalBinary(resp); err != nil {
			klog.Warningf("idp: malformed certificate-ack from %s: %v", addrs[i], err)
			continue
		}
		if reply.State == nil {
			klog.Warningf("idp: %v", api.UnexpectedProtocolMessage(fmt.Sprintf("expected a state reply from %s", addrs[i])))
			continue
		}
		if reply.State.Err != nil && reply.State.Err.Kind == api.MissingEarlierCertificates {
			pub.sync.TriggerSync(ctx, addrs[i], reply.State.Err.Sequence, nil)
		}
	}
}
