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

// Package committee describes the fixed set of participants in the
// epoch-commit protocol: the IdP and the witnesses, each with a network
// address, and each witness with a voting power.
package committee

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/transparency-dev/witness-quorum/api"
)

// Member is a single committee participant's public identity.
type Member struct {
	PublicKey api.PublicKey `json:"public_key"`
	Addr      string        `json:"addr"`
}

// WitnessMember is a witness's identity plus its voting weight.
type WitnessMember struct {
	Member
	VotingPower uint64 `json:"voting_power"`
}

// Committee is the totally-ordered (by public key) set of protocol
// participants, loaded once at startup and never mutated.
type Committee struct {
	Idp       Member          `json:"idp"`
	Witnesses []WitnessMember `json:"witnesses"`
}

// byPubKey gives the committee's canonical ordering.
type byPubKey []WitnessMember

func (w byPubKey) Len() int      { return len(w) }
func (w byPubKey) Swap(i, j int) { w[i], w[j] = w[j], w[i] }
func (w byPubKey) Less(i, j int) bool {
	for b := 0; b < len(w[i].PublicKey); b++ {
		if w[i].PublicKey[b] != w[j].PublicKey[b] {
			return w[i].PublicKey[b] < w[j].PublicKey[b]
		}
	}
	return false
}

// Normalize sorts the witness list into canonical order. Call after
// loading or constructing a Committee by hand.
func (c *Committee) Normalize() {
	sort.Sort(byPubKey(c.Witnesses))
}

// VotingPower returns the voting power of pk, or 0 if pk is not a witness.
func (c *Committee) VotingPower(pk api.PublicKey) uint64 {
	for _, w := range c.Witnesses {
		if w.PublicKey == pk {
			return w.VotingPower
		}
	}
	return 0
}

// TotalVotingPower sums the voting power of every witness.
func (c *Committee) TotalVotingPower() uint64 {
	var total uint64
	for _, w := range c.Witnesses {
		total += w.VotingPower
	}
	return total
}

// QuorumThreshold is ⌊2·Σw/3⌋ + 1: the minimum accumulated voting power for
// a certificate to be valid.
func (c *Committee) QuorumThreshold() uint64 {
	return (2*c.TotalVotingPower())/3 + 1
}

// ValidityThreshold is ⌈Σw/3⌉: the minimum voting power a single claim
// needs before it can be treated as plausibly correct absent a full
// quorum. The commit path does not use it.
func (c *Committee) ValidityThreshold() uint64 {
	total := c.TotalVotingPower()
	return (total + 2) / 3
}

// Addresses returns the network address of every witness, in committee
// order.
func (c *Committee) Addresses() []string {
	addrs := make([]string, len(c.Witnesses))
	for i, w := range c.Witnesses {
		addrs[i] = w.Addr
	}
	return addrs
}

// Export writes the committee as JSON to path.
func (c *Committee) Export(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("committee: export: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// Import reads a committee from a JSON file written by Export, and
// normalizes witness ordering.
func Import(path string) (*Committee, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("committee: import: %w", err)
	}
	c := &Committee{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("committee: import: %w", err)
	}
	c.Normalize()
	return c, nil
}
