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
	"fmt"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/committee"
	"github.com/transparency-dev/witness-quorum/internal/keys"
)

// Aggregator is a small state machine, owned exclusively by the
// Publisher: it absorbs votes for a single known root/sequence pair and
// returns the assembled certificate the moment quorum is first reached.
// It is never shared or locked; the Publisher reuses one Aggregator for
// every epoch, and each Reset starts the next epoch from scratch.
type Aggregator struct {
	committee *committee.Committee

	root api.Root
	seq  api.SequenceNumber

	contributed map[api.PublicKey]bool
	votes       []api.VoteSig
	weight      uint64
	done        bool
}

// NewAggregator builds an Aggregator over a fixed committee. Call Reset
// before absorbing votes for a given epoch.
func NewAggregator(c *committee.Committee) *Aggregator {
	return &Aggregator{committee: c}
}

// Reset points the Aggregator at a new root/sequence and clears all
// progress, ready for a fresh epoch.
func (a *Aggregator) Reset(root api.Root, seq api.SequenceNumber) {
	a.root = root
	a.seq = seq
	a.contributed = make(map[api.PublicKey]bool)
	a.votes = nil
	a.weight = 0
	a.done = false
}

// Absorb feeds one vote to the Aggregator. It returns a non-nil
// Certificate exactly once per epoch, on the call whose voting power
// first reaches the committee's quorum threshold; every call after that
// returns (nil, nil). A rejected vote never mutates aggregator state.
func (a *Aggregator) Absorb(v *api.Vote) (*api.Certificate, error) {
	if a.done {
		return nil, nil
	}
	if v.Root != a.root || v.SequenceNumber != a.seq {
		return nil, api.UnexpectedVote(fmt.Sprintf(
			"vote for root %x seq %d does not match aggregator target root %x seq %d",
			v.Root, v.SequenceNumber, a.root, a.seq))
	}
	power := a.committee.VotingPower(v.Author)
	if power == 0 {
		return nil, api.WrapMessageErrorAsIdp(api.NewUnknownWitness(v.Author))
	}
	if a.contributed[v.Author] {
		return nil, api.WrapMessageErrorAsIdp(api.NewWitnessReuse(v.Author))
	}
	digest := api.ComputeDigest(v.Root, v.SequenceNumber)
	if !keys.Verify(v.Author, digest, v.Signature) {
		return nil, api.WrapMessageErrorAsIdp(api.NewInvalidSignature("vote signature verification failed"))
	}

	a.contributed[v.Author] = true
	a.votes = append(a.votes, api.VoteSig{Author: v.Author, Signature: v.Signature})
	a.weight += power

	if a.weight >= a.committee.QuorumThreshold() {
		a.done = true
		cert := &api.Certificate{
			Root:           a.root,
			SequenceNumber: a.seq,
			Votes:          append([]api.VoteSig(nil), a.votes...),
		}
		return cert, nil
	}
	return nil, nil
}
