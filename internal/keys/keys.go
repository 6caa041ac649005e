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

// Package keys wraps Ed25519 key generation, signing and verification over
// the 32-byte digests produced by package api. Batch verification is the
// one place where this package cannot reach for an ecosystem library: no
// package in this module's dependency graph implements Ed25519 batch
// verification, so VerifyBatch loops crypto/ed25519.Verify instead of doing
// a true constant-factor batch check.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/transparency-dev/witness-quorum/api"
)

// PrivateKey is the on-disk shape of a generated keypair: the public key
// plus the Ed25519 seed it was derived from. Exported field names double
// as the JSON field names, mirroring the plain encoding/json config
// loading used throughout this module.
type PrivateKey struct {
	PublicKey api.PublicKey `json:"public_key"`
	Seed      []byte        `json:"seed"`
}

// Generate creates a fresh Ed25519 keypair.
func Generate() (*PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	pk := &PrivateKey{}
	copy(pk.PublicKey[:], pub)
	pk.Seed = priv.Seed()
	return pk, nil
}

// Signer returns the standard library signer backing this keypair.
func (k *PrivateKey) Signer() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(k.Seed)
}

// Sign signs a digest, returning a fixed-size api.Signature.
func (k *PrivateKey) Sign(digest api.Digest) api.Signature {
	sig := ed25519.Sign(k.Signer(), digest[:])
	var out api.Signature
	copy(out[:], sig)
	return out
}

// Verify checks a single signature over a digest under the given public
// key.
func Verify(pub api.PublicKey, digest api.Digest, sig api.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), digest[:], sig[:])
}

// VerifyBatch verifies N (pubkey, digest, signature) triples that all
// cover the same logical certificate. It is not a true Ed25519 batch
// verification (no such primitive is available without introducing a
// dependency the rest of this codebase has no other use for); it is a
// straightforward loop that stops at the first failure and reports which
// index failed.
func VerifyBatch(pubs []api.PublicKey, digest api.Digest, sigs []api.Signature) (ok bool, failedIndex int) {
	for i := range pubs {
		if !Verify(pubs[i], digest, sigs[i]) {
			return false, i
		}
	}
	return true, -1
}

// Export writes the keypair as JSON to path, matching the plain
// encoding/json config convention used for the committee file.
func (k *PrivateKey) Export(path string) error {
	b, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return fmt.Errorf("keys: export: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// Import reads a keypair from a JSON file written by Export.
func Import(path string) (*PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: import: %w", err)
	}
	pk := &PrivateKey{}
	if err := json.Unmarshal(b, pk); err != nil {
		return nil, fmt.Errorf("keys: import: %w", err)
	}
	if len(pk.Seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: import: seed has wrong length %d", len(pk.Seed))
	}
	return pk, nil
}
