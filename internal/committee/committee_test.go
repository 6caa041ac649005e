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

package committee

import (
	"path/filepath"
	"testing"

	"github.com/transparency-dev/witness-quorum/api"
)

func fourWitnessCommittee() *Committee {
	c := &Committee{Idp: Member{Addr: "127.0.0.1:9000"}}
	for i := 0; i < 4; i++ {
		var pk api.PublicKey
		pk[0] = byte(i + 1)
		c.Witnesses = append(c.Witnesses, WitnessMember{
			Member:      Member{PublicKey: pk, Addr: "127.0.0.1:900" + string(rune('1'+i))},
			VotingPower: 1,
		})
	}
	c.Normalize()
	return c
}

func TestQuorumAndValidityThresholds(t *testing.T) {
	c := fourWitnessCommittee()
	if got, want := c.TotalVotingPower(), uint64(4); got != want {
		t.Fatalf("TotalVotingPower = %d, want %d", got, want)
	}
	// Spec scenario: 4 witnesses, voting_power 1 each, quorum threshold 3.
	if got, want := c.QuorumThreshold(), uint64(3); got != want {
		t.Errorf("QuorumThreshold = %d, want %d", got, want)
	}
	if got, want := c.ValidityThreshold(), uint64(2); got != want {
		t.Errorf("ValidityThreshold = %d, want %d", got, want)
	}
}

func TestVotingPowerUnknownWitnessIsZero(t *testing.T) {
	c := fourWitnessCommittee()
	var unknown api.PublicKey
	unknown[0] = 0xFF
	if got := c.VotingPower(unknown); got != 0 {
		t.Errorf("VotingPower(unknown) = %d, want 0", got)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	c := fourWitnessCommittee()
	path := filepath.Join(t.TempDir(), "committee.json")
	if err := c.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, err := Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got.QuorumThreshold() != c.QuorumThreshold() {
		t.Errorf("QuorumThreshold mismatch after round trip")
	}
	if len(got.Witnesses) != len(c.Witnesses) {
		t.Errorf("witness count mismatch after round trip")
	}
}
