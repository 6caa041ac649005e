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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleNotification() *Notification {
	var root Root
	root[0] = 0xAB
	n := &Notification{
		Root:           root,
		Proof:          AuditProof{Nodes: [][]byte{{1, 2, 3}, {}, {9}}},
		SequenceNumber: 7,
	}
	n.ID = ComputeDigest(n.Root, n.SequenceNumber)
	n.Signature[0] = 0xCD
	return n
}

func TestNotificationRoundTrip(t *testing.T) {
	want := sampleNotification()
	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got := &Notification{}
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestVoteRoundTrip(t *testing.T) {
	want := &Vote{SequenceNumber: 3}
	want.Root[1] = 0x11
	want.Author[2] = 0x22
	want.Signature[3] = 0x33

	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got := &Vote{}
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCertificateRoundTrip(t *testing.T) {
	want := &Certificate{SequenceNumber: 42}
	want.Root[0] = 0x01
	for i := 0; i < 3; i++ {
		var vs VoteSig
		vs.Author[0] = byte(i)
		vs.Signature[0] = byte(i + 1)
		want.Votes = append(want.Votes, vs)
	}

	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got := &Certificate{}
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStateRoundTripWithAndWithoutLock(t *testing.T) {
	for _, withLock := range []bool{true, false} {
		want := &State{SequenceNumber: 9}
		want.Root[0] = 0x77
		if withLock {
			want.Lock = &Vote{SequenceNumber: 9, Root: want.Root}
			want.Lock.Author[0] = 0x01
		}
		b, err := want.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary: %v", err)
		}
		got := &State{}
		if err := got.UnmarshalBinary(b); err != nil {
			t.Fatalf("UnmarshalBinary: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (withLock=%v) (-want +got):\n%s", withLock, diff)
		}
	}
}

func TestIdpToWitnessRoundTrip(t *testing.T) {
	cases := []*IdpToWitness{
		{Notification: sampleNotification()},
		{Certificate: &Certificate{SequenceNumber: 1, Votes: []VoteSig{{}}}},
		{StateQuery: true},
		{CertificateQuery: &CertificateQuery{SequenceNumber: 5}},
	}
	for i, want := range cases {
		b, err := want.MarshalBinary()
		if err != nil {
			t.Fatalf("case %d: MarshalBinary: %v", i, err)
		}
		got := &IdpToWitness{}
		if err := got.UnmarshalBinary(b); err != nil {
			t.Fatalf("case %d: UnmarshalBinary: %v", i, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("case %d round trip mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestWitnessToIdpRoundTrip(t *testing.T) {
	cases := []*WitnessToIdp{
		{Vote: &VoteResult{Vote: &Vote{SequenceNumber: 4}}},
		{Vote: &VoteResult{Err: WrapMessageError(NewInvalidSignature("bad sig"))}},
		{State: &StateResult{State: &State{SequenceNumber: 2}}},
		{State: &StateResult{Err: NewMissingEarlierCertificates(1)}},
		NewCertificateResponse([]byte{1, 2, 3}),
		NewCertificateResponse(nil),
	}
	for i, want := range cases {
		b, err := want.MarshalBinary()
		if err != nil {
			t.Fatalf("case %d: MarshalBinary: %v", i, err)
		}
		got := &WitnessToIdp{}
		if err := got.UnmarshalBinary(b); err != nil {
			t.Fatalf("case %d: UnmarshalBinary: %v", i, err)
		}
		opts := cmpopts.IgnoreUnexported(WitnessToIdp{})
		if diff := cmp.Diff(want, got, opts); diff != "" {
			t.Errorf("case %d round trip mismatch (-want +got):\n%s", i, diff)
		}
		if want.HasCertificateResponse() != got.HasCertificateResponse() {
			t.Errorf("case %d: HasCertificateResponse mismatch: want %v got %v", i, want.HasCertificateResponse(), got.HasCertificateResponse())
		}
	}
}

func TestErrorKindIsMatchesOnKindOnly(t *testing.T) {
	a := NewInvalidSignature("reason one")
	b := NewInvalidSignature("reason two")
	if !errors.Is(a, b) {
		t.Errorf("expected errors.Is to match on Kind regardless of payload")
	}
	if errors.Is(a, NewUnknownWitness(PublicKey{})) {
		t.Errorf("expected errors.Is to fail across different Kinds")
	}
}

func TestWitnessErrorUnwrapsMessageError(t *testing.T) {
	inner := NewUnknownWitness(PublicKey{1})
	we := WrapMessageError(inner)
	if !errors.Is(we, inner) {
		t.Errorf("expected WitnessError to unwrap to its MessageError")
	}
}

func TestUpdateRequestRoundTrip(t *testing.T) {
	want := &UpdateRequest{Label: []byte{0x01, 0x01}, Value: []byte{0x02, 0x01}}
	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got := &UpdateRequest{}
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRequestRejectsTrailingBytes(t *testing.T) {
	want := &UpdateRequest{Label: []byte{1}, Value: []byte{2}}
	b, _ := want.MarshalBinary()
	b = append(b, 0xFF)
	got := &UpdateRequest{}
	if err := got.UnmarshalBinary(b); err == nil {
		t.Errorf("expected an error for trailing bytes")
	}
}

func TestComputeDigestDeterministic(t *testing.T) {
	var root Root
	root[5] = 9
	d1 := ComputeDigest(root, 12)
	d2 := ComputeDigest(root, 12)
	if d1 != d2 {
		t.Errorf("ComputeDigest not deterministic: %x != %x", d1, d2)
	}
	d3 := ComputeDigest(root, 13)
	if d1 == d3 {
		t.Errorf("ComputeDigest did not vary with sequence number")
	}
}
