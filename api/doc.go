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

// Package api defines the wire messages exchanged between the IdP and the
// witness committee, and the error taxonomy carried on that wire.
package api

// SequenceNumber is the monotonically increasing epoch counter of the
// directory. It starts at 1 for the first committed epoch.
type SequenceNumber = uint64

// Root is an opaque 32-byte commitment produced by the directory.
type Root [32]byte

// Digest is a 32-byte hash, used both as a notification/vote identifier and
// as the value actually signed.
type Digest [32]byte

// PublicKey identifies an IdP or witness.
type PublicKey [32]byte

// Signature is an Ed25519 signature over a Digest.
type Signature [64]byte
