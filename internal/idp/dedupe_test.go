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

import "testing"

func TestDedupeFirstSeenIsNotDuplicate(t *testing.T) {
	d := NewDedupe(16)
	if d.Seen([]byte("a")) {
		t.Error("first submission reported as already seen")
	}
}

func TestDedupeRepeatIsDuplicate(t *testing.T) {
	d := NewDedupe(16)
	d.Seen([]byte("a"))
	if !d.Seen([]byte("a")) {
		t.Error("repeated submission not reported as a duplicate")
	}
}

func TestDedupeDistinctPayloadsAreIndependent(t *testing.T) {
	d := NewDedupe(16)
	d.Seen([]byte("a"))
	if d.Seen([]byte("b")) {
		t.Error("distinct payload reported as a duplicate")
	}
}

func TestDedupeEvictsUnderPressure(t *testing.T) {
	d := NewDedupe(2)
	d.Seen([]byte("a"))
	d.Seen([]byte("b"))
	d.Seen([]byte("c")) // evicts "a", since size is bounded at 2.
	if d.Seen([]byte("a")) {
		t.Error("evicted entry still reported as seen")
	}
}
