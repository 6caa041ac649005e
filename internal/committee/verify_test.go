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
	"errors"
	"testing"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/keys"
)

func fourKeyCommittee(t *testing.T) (*Committee, []*keys.PrivateKey) {
	t.Helper()
	c := &Committee{Idp: Member{Addr: "idp:9000"}}
	var sks []*keys.PrivateKey
	for i := 0; i < 4; i++ {
		sk, err := keys.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		sks = append(sks, sk)
		c.Witnesses = append(c.Witnesses, WitnessMember{
			Member:      Member{PublicKey: sk.PublicKey, Addr: "w"},
			VotingPower: 1,
		})
	}
	c.Normalize()
	return c, sks
}

func certFrom(root api.Root, seq uint64, sks []*keys.PrivateKey, indices ...int) *api.Certificate {
	digest := api.ComputeDigest(root, seq)
	cert := &api.Certificate{Root: root, SequenceNumber: seq}
	for _, i := range indices {
		cert.Votes = append(cert.Votes, api.VoteSig{
			Author:    sks[i].PublicKey,
			Signature: sks[i].Sign(digest),
		})
	}
	return cert
}

func TestVerifyCertificateAcceptsQuorum(t *testing.T) {
	c, sks := fourKeyCommittee(t)
	cert := certFrom(api.Root{1}, 1, sks, 0, 1, 2)
	if err := c.VerifyCertificate(cert); err != nil {
		t.Errorf("VerifyCertificate: %v", err)
	}
}

func TestVerifyCertificateRejectsBelowQuorum(t *testing.T) {
	c, sks := fourKeyCommittee(t)
	cert := certFrom(api.Root{1}, 1, sks, 0, 1)
	err := c.VerifyCertificate(cert)
	var me *api.MessageError
	if !errors.As(err, &me) || me.Kind != api.CertificateRequiresQuorum {
		t.Errorf("VerifyCertificate = %v, want CertificateRequiresQuorum", err)
	}
}

func TestVerifyCertificateRejectsDuplicateAuthor(t *testing.T) {
	c, sks := fourKeyCommittee(t)
	cert := certFrom(api.Root{1}, 1, sks, 0, 0, 1)
	err := c.VerifyCertificate(cert)
	var me *api.MessageError
	if !errors.As(err, &me) || me.Kind != api.WitnessReuse {
		t.Errorf("VerifyCertificate = %v, want WitnessReuse", err)
	}
}

func TestVerifyCertificateRejectsUnknownWitness(t *testing.T) {
	c, sks := fourKeyCommittee(t)
	outsider, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cert := certFrom(api.Root{1}, 1, sks, 0, 1)
	digest := api.ComputeDigest(api.Root{1}, 1)
	cert.Votes = append(cert.Votes, api.VoteSig{Author: outsider.PublicKey, Signature: outsider.Sign(digest)})
	gotErr := c.VerifyCertificate(cert)
	var me *api.MessageError
	if !errors.As(gotErr, &me) || me.Kind != api.UnknownWitness {
		t.Errorf("VerifyCertificate = %v, want UnknownWitness", gotErr)
	}
}

func TestVerifyCertificateRejectsBadSignature(t *testing.T) {
	c, sks := fourKeyCommittee(t)
	cert := certFrom(api.Root{1}, 1, sks, 0, 1, 2)
	cert.Votes[1].Signature[0] ^= 0xFF
	err := c.VerifyCertificate(cert)
	var me *api.MessageError
	if !errors.As(err, &me) || me.Kind != api.InvalidSignature {
		t.Errorf("VerifyCertificate = %v, want InvalidSignature", err)
	}
}
