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
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedupe suppresses resubmission of identical update requests seen
// recently at ingress. The directory does not de-duplicate: it appends
// every entry of a sealed batch as its own leaf, so a client resending the
// same request many times would otherwise spend Batcher queue capacity and
// directory leaves on repeats.
type Dedupe struct {
	cache *lru.Cache[[32]byte, struct{}]
}

// NewDedupe builds a Dedupe holding up to size recently-seen requests.
func NewDedupe(size int) *Dedupe {
	c, err := lru.New[[32]byte, struct{}](size)
	if err != nil {
		panic(fmt.Errorf("idp: lru.New(%d): %w", size, err))
	}
	return &Dedupe{cache: c}
}

// Seen reports whether raw was already submitted within the cache's
// recent window and records it as seen regardless, so a resend resets its
// place at the front of the window.
func (d *Dedupe) Seen(raw []byte) bool {
	key := sha256.Sum256(raw)
	_, ok := d.cache.Get(key)
	d.cache.Add(key, struct{}{})
	return ok
}
