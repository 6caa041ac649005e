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
	"fmt"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/keys"
)

// VerifyCertificate checks a PublishCertificate against this committee:
// no duplicate author, every author has nonzero voting power, the summed
// voting power meets the quorum threshold, and every signature verifies
// over the certificate's shared digest. Every witness calls this on
// certificates received from the IdP; the IdP does not call it, since its
// Aggregator checks each vote as it arrives.
func (c *Committee) VerifyCertificate(cert *api.Certificate) error {
	seen := make(map[api.PublicKey]bool, len(cert.Votes))
	var weight uint64
	pubs := make([]api.PublicKey, len(cert.Votes))
	sigs := make([]api.Signature, len(cert.Votes))

	for i, v := range cert.Votes {
		if seen[v.Author] {
			return api.NewWitnessReuse(v.Author)
		}
		seen[v.Author] = true

		power := c.VotingPower(v.Author)
		if power == 0 {
			return api.NewUnknownWitness(v.Author)
		}
		weight += power
		pubs[i] = v.Author
		sigs[i] = v.Signature
	}

	if weight < c.QuorumThreshold() {
		return api.NewCertificateRequiresQuorum()
	}

	digest := api.ComputeDigest(cert.Root, cert.SequenceNumber)
	if ok, failed := keys.VerifyBatch(pubs, digest, sigs); !ok {
		return api.NewInvalidSignature(fmt.Sprintf("vote index %d", failed))
	}
	return nil
}
