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

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// digestOf computes H(root || le8(seq)) using Blake2b-256. This is the value
// both PublishNotification and PublishVote are signed over, and the value
// a PublishNotification's ID must equal.
func digestOf(root Root, seq SequenceNumber) Digest {
	var le8 [8]byte
	binary.LittleEndian.PutUint64(le8[:], seq)

	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key, and we pass none.
		panic(err)
	}
	h.Write(root[:])
	h.Write(le8[:])

	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}
