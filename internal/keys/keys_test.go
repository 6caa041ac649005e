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

package keys

import (
	"path/filepath"
	"testing"

	"github.com/transparency-dev/witness-quorum/api"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pk, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	digest := api.ComputeDigest(api.Root{1, 2, 3}, 7)
	sig := pk.Sign(digest)
	if !Verify(pk.PublicKey, digest, sig) {
		t.Errorf("Verify failed for a freshly produced signature")
	}
	other := api.ComputeDigest(api.Root{1, 2, 4}, 7)
	if Verify(pk.PublicKey, other, sig) {
		t.Errorf("Verify succeeded over the wrong digest")
	}
}

func TestVerifyBatchStopsAtFirstFailure(t *testing.T) {
	k1, _ := Generate()
	k2, _ := Generate()
	digest := api.ComputeDigest(api.Root{9}, 1)

	sig1 := k1.Sign(digest)
	badSig := k2.Sign(api.ComputeDigest(api.Root{10}, 1)) // wrong digest

	ok, idx := VerifyBatch([]api.PublicKey{k1.PublicKey, k2.PublicKey}, digest, []api.Signature{sig1, badSig})
	if ok {
		t.Fatalf("expected VerifyBatch to fail")
	}
	if idx != 1 {
		t.Errorf("expected failure at index 1, got %d", idx)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	pk, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keypair.json")
	if err := pk.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, err := Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got.PublicKey != pk.PublicKey {
		t.Errorf("public key mismatch after round trip")
	}
	digest := api.ComputeDigest(api.Root{1}, 1)
	if !Verify(got.PublicKey, digest, got.Sign(digest)) {
		t.Errorf("imported key cannot sign/verify")
	}
}
