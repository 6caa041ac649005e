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

package api

// AuditProof is a VKD-library artifact proving state.root is the
// append-only successor of an earlier root. It is treated as an opaque
// ordered list of node hashes plus the two tree sizes the proof spans;
// internal/vkd is the only package that knows how to build or check one. A
// witness never sees the VKD's own size bookkeeping, so the proof carries
// its own sizes rather than requiring a lookup the witness has no way to
// perform.
type AuditProof struct {
	Size1, Size2 uint64
	Nodes        [][]byte
}

// Notification is the IdP's announcement of a newly-committed epoch.
// Equality between two Notifications is defined by ID alone.
type Notification struct {
	Root           Root
	Proof          AuditProof
	SequenceNumber SequenceNumber
	ID             Digest
	Signature      Signature
}

// Vote is a witness's signed acceptance of a Notification.
type Vote struct {
	Root           Root
	SequenceNumber SequenceNumber
	Author         PublicKey
	Signature      Signature
}

// VoteSig is a certificate's per-author contribution: the witness and the
// signature it produced over the certificate's shared digest.
type VoteSig struct {
	Author    PublicKey
	Signature Signature
}

// Certificate is quorum proof that every listed author signed
// H(Root || le8(SequenceNumber)).
type Certificate struct {
	Root           Root
	SequenceNumber SequenceNumber
	Votes          []VoteSig
}

// State is a witness's full persisted state, returned in response to state
// queries and certificate submissions.
type State struct {
	Root           Root
	SequenceNumber SequenceNumber
	Lock           *Vote // nil when no vote is pending for the current sequence
}

// CertificateQuery asks a peer for the certificate committed at a given
// sequence number.
type CertificateQuery struct {
	SequenceNumber SequenceNumber
}

// ComputeDigest computes H(root || le8(seq)), the value both notifications and
// votes are signed over.
func ComputeDigest(root Root, seq SequenceNumber) Digest {
	return digestOf(root, seq)
}

// IdpToWitness is the tagged union of messages the IdP sends a witness.
type IdpToWitness struct {
	Notification     *Notification
	Certificate      *Certificate
	StateQuery       bool
	CertificateQuery *CertificateQuery
}

// WitnessToIdp is the tagged union of messages a witness sends the IdP.
type WitnessToIdp struct {
	Vote                 *VoteResult
	State                *StateResult
	CertificateResponse  []byte // opaque envelope: a serialized IdpToWitness.Certificate
	hasCertificateResponse bool
}

// VoteResult carries either a successfully cast Vote or the WitnessError
// explaining why one was not.
type VoteResult struct {
	Vote *Vote
	Err  *WitnessError
}

// StateResult carries either the witness's current State or the
// WitnessError explaining why the request could not be satisfied.
type StateResult struct {
	State *State
	Err   *WitnessError
}

// NewCertificateResponse builds a WitnessToIdp carrying an opaque certificate
// envelope for forwarding, distinguishing "present but empty" from "absent"
// via the explicit flag (a nil slice round-trips as present-and-empty).
func NewCertificateResponse(envelope []byte) *WitnessToIdp {
	return &WitnessToIdp{CertificateResponse: envelope, hasCertificateResponse: true}
}

func (w *WitnessToIdp) HasCertificateResponse() bool { return w.hasCertificateResponse }
