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

// Package witness implements the witness side of the epoch-commit
// protocol: the PublishHandler state machine over WitnessState, and the
// SyncHelper that serves certificates-by-sequence-number to peers. Both
// are single-threaded: PublishHandler is the sole mutator of WitnessState
// and processes every message serially, matching the spec's requirement
// that no global ordering between witnesses is needed but state mutation
// at one witness is strictly serial.
package witness

import (
	"fmt"

	"k8s.io/klog/v2"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/committee"
	"github.com/transparency-dev/witness-quorum/internal/keys"
	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/vkd"
)

// certCacheSize bounds the read-through LRU cache SyncHelper keeps in
// front of the audit store, avoiding a Badger read on every certificate
// query from a hot peer.
const certCacheSize = 1024

// State mirrors api.State in mutable form: the witness's persisted
// (root, sequence_number, lock) triple. sequence_number is the next
// expected epoch; lock optionally holds the vote cast for it.
type State struct {
	Root           api.Root
	SequenceNumber api.SequenceNumber
	Lock           *api.Vote
}

func (s State) toAPI() api.State {
	return api.State{Root: s.Root, SequenceNumber: s.SequenceNumber, Lock: s.Lock}
}

// initialState is the state a witness starts at before it has ever seen a
// notification: sequence 1, root equal to the empty directory's root, no
// lock.
func initialState() State {
	return State{Root: vkd.EmptyRoot(), SequenceNumber: 1}
}

// PublishHandler is the witness's sole mutator of WitnessState. It holds
// the durable secure-storage handle the state is persisted to after every
// transition that changes it, the IdP's public key (for notification
// signature verification), and the committee (for certificate
// verification). It is not safe for concurrent use; callers (the
// transport server's per-connection dispatch) must serialize calls into
// it, matching the spec's "PublishHandler processes messages serially."
type PublishHandler struct {
	secure *store.Store
	idpPK  api.PublicKey
	priv   *keys.PrivateKey
	comm   *committee.Committee
	sync   *SyncHelper

	state State
}

// NewPublishHandler constructs a PublishHandler, loading persisted state
// from secure storage if present, or adopting the initial defaults
// otherwise. Neither path requires a clean prior shutdown.
func NewPublishHandler(secure *store.Store, idpPK api.PublicKey, priv *keys.PrivateKey, comm *committee.Committee, sync *SyncHelper) (*PublishHandler, error) {
	h := &PublishHandler{secure: secure, idpPK: idpPK, priv: priv, comm: comm, sync: sync}
	raw, err := secure.Get(store.SecureKey)
	if err == store.ErrNotFound {
		h.state = initialState()
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("witness: read state: %w", err)
	}
	s := &api.State{}
	if err := s.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("witness: deserialize state: %w", err)
	}
	h.state = State{Root: s.Root, SequenceNumber: s.SequenceNumber, Lock: s.Lock}
	return h, nil
}

// State returns the handler's current state, for StateQuery replies.
func (h *PublishHandler) State() State { return h.state }

func (h *PublishHandler) persist() error {
	b, err := h.state.toAPI().MarshalBinary()
	if err != nil {
		// Failure to serialize self-owned data is a programmer error, not a
		// recoverable condition.
		klog.Exitf("witness: failed to serialize own state: %v", err)
	}
	if err := h.secure.Put(store.SecureKey, b); err != nil {
		// A storage write with no defined recovery path is fatal.
		klog.Exitf("witness: failed to persist state: %v", err)
	}
	return nil
}

// verifyNotification checks well-formedness (id matches content), the
// IdP's signature over that id, and that the audit proof connects the
// witness's current root to the notification's root.
func (h *PublishHandler) verifyNotification(n *api.Notification) error {
	wantID := api.ComputeDigest(n.Root, n.SequenceNumber)
	if wantID != n.ID {
		return api.NewMalformedNotificationID(n.ID)
	}
	if !keys.Verify(h.idpPK, n.ID, n.Signature) {
		return api.NewInvalidSignature("notification signature verification failed")
	}
	if err := vkd.VerifyAudit(h.state.Root, n.Proof.Size1, n.Root, n.Proof.Size2, n.Proof); err != nil {
		return err
	}
	return nil
}

// OnNotification implements the §4.5 PublishNotification transition.
func (h *PublishHandler) OnNotification(n *api.Notification) *api.VoteResult {
	if err := h.verifyNotification(n); err != nil {
		me, ok := err.(*api.MessageError)
		if !ok {
			me = api.NewProofVerificationFailed(err.Error())
		}
		return &api.VoteResult{Err: api.WrapMessageError(me)}
	}

	if n.SequenceNumber != h.state.SequenceNumber {
		return &api.VoteResult{Err: api.NewUnexpectedSequenceNumber(h.state.SequenceNumber, n.SequenceNumber)}
	}

	if h.state.Lock != nil {
		if h.state.Lock.Root == n.Root {
			// Idempotent rebroadcast: return the same vote without mutating
			// state or re-signing.
			return &api.VoteResult{Vote: h.state.Lock}
		}
		return &api.VoteResult{Err: api.NewConflictingNotification(h.state.Lock.Root, n.Root)}
	}

	digest := api.ComputeDigest(n.Root, n.SequenceNumber)
	vote := &api.Vote{
		Root:           n.Root,
		SequenceNumber: n.SequenceNumber,
		Author:         h.priv.PublicKey,
		Signature:      h.priv.Sign(digest),
	}
	h.state.Lock = vote
	h.persist()
	return &api.VoteResult{Vote: vote}
}

// OnCertificate implements the §4.5 PublishCertificate transition. raw is
// the certificate's own serialized IdpToWitness envelope, forwarded to
// SyncHelper on commit so that a later CertificateQuery for this sequence
// can be answered without re-serializing.
func (h *PublishHandler) OnCertificate(c *api.Certificate, raw []byte) *api.StateResult {
	if err := h.comm.VerifyCertificate(c); err != nil {
		me, ok := err.(*api.MessageError)
		if !ok {
			me = api.NewSerializationError(err.Error())
		}
		return &api.StateResult{Err: api.WrapMessageError(me)}
	}

	switch {
	case c.SequenceNumber > h.state.SequenceNumber:
		return &api.StateResult{Err: api.NewMissingEarlierCertificates(h.state.SequenceNumber)}
	case c.SequenceNumber < h.state.SequenceNumber:
		// Already committed; no re-emission.
		s := h.state.toAPI()
		return &api.StateResult{State: &s}
	}

	h.state.Root = c.Root
	h.state.SequenceNumber++
	h.state.Lock = nil
	h.persist()

	if h.sync != nil {
		h.sync.StoreCertificate(c.SequenceNumber, raw)
	}

	s := h.state.toAPI()
	return &api.StateResult{State: &s}
}

// OnStateQuery implements the StateQuery transition.
func (h *PublishHandler) OnStateQuery() *api.StateResult {
	s := h.state.toAPI()
	return &api.StateResult{State: &s}
}

// SyncHelper persists processed certificates (keyed by sequence number, in
// the IdP/witness CertificateLog layout) and serves
// PublishCertificateQuery replies. A read-through LRU cache sits in front
// of the audit store: a certificate is written to both the cache and
// storage on commit, and a query checks the cache before touching Badger.
type SyncHelper struct {
	audit *store.Store
	cache *lru.Cache[uint64, []byte]
}

// NewSyncHelper builds a SyncHelper over audit storage (sequence_number ->
// serialized certificate message).
func NewSyncHelper(audit *store.Store) *SyncHelper {
	c, err := lru.New[uint64, []byte](certCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which certCacheSize never is.
		panic(fmt.Errorf("witness: lru.New: %w", err))
	}
	return &SyncHelper{audit: audit, cache: c}
}

// StoreCertificate persists a certificate processed by PublishHandler,
// keyed by sequence number, and warms the cache with it.
func (s *SyncHelper) StoreCertificate(seq api.SequenceNumber, raw []byte) {
	if err := s.audit.Put(store.SequenceKey(seq), raw); err != nil {
		klog.Exitf("witness: failed to persist certificate at sequence %d: %v", seq, err)
	}
	s.cache.Add(seq, append([]byte(nil), raw...))
}

// Query answers a PublishCertificateQuery: the raw serialized
// IdpToWitness.Certificate envelope if present, or (nil, false) if this
// witness never committed that sequence. Per §4.6, an absent certificate
// produces no reply at all; it is the caller's job to omit a response
// when ok is false, leaving the requester to time out and retry
// elsewhere.
func (s *SyncHelper) Query(seq api.SequenceNumber) (raw []byte, ok bool) {
	if v, hit := s.cache.Get(seq); hit {
		return v, true
	}
	v, err := s.audit.Get(store.SequenceKey(seq))
	if err != nil {
		return nil, false
	}
	s.cache.Add(seq, v)
	return v, true
}
