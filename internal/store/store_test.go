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

package store

import (
	"errors"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTest(t)
	if err := s.Put(SecureKey, []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(SecureKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.Get(SequenceKey(1))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutBatchIsAllOrNothingOnSuccess(t *testing.T) {
	s := openTest(t)
	writes := []Write{
		{Key: SequenceKey(1), Value: []byte("a")},
		{Key: SequenceKey(2), Value: []byte("b")},
		{Key: SequenceKey(3), Value: []byte("c")},
	}
	if err := s.PutBatch(writes); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	for i, w := range writes {
		got, err := s.Get(w.Key)
		if err != nil {
			t.Fatalf("entry %d: Get: %v", i, err)
		}
		if string(got) != string(w.Value) {
			t.Errorf("entry %d: Get = %q, want %q", i, got, w.Value)
		}
	}
}

func TestSequenceKeyIsLittleEndian(t *testing.T) {
	k := SequenceKey(1)
	if k[0] != 1 || k[1] != 0 {
		t.Errorf("SequenceKey(1) = %v, want little-endian [1 0 0 0 0 0 0 0]", k)
	}
}
