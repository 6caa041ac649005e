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

// UpdateRequest is a client-submitted (label, value) pair. Duplicates
// within a batch are permitted; the directory appends every entry as its
// own leaf and does not de-duplicate them.
type UpdateRequest struct {
	Label []byte
	Value []byte
}

func (u *UpdateRequest) MarshalBinary() ([]byte, error) {
	var e encoder
	e.putBytes(u.Label)
	e.putBytes(u.Value)
	return e.bytes(), nil
}

func (u *UpdateRequest) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	label, err := d.variable()
	if err != nil {
		return err
	}
	value, err := d.variable()
	if err != nil {
		return err
	}
	if !d.done() {
		return NewSerializationError("trailing bytes after update request")
	}
	u.Label = append([]byte(nil), label...)
	u.Value = append([]byte(nil), value...)
	return nil
}

// AckResponse is the short opaque acknowledgement the IdP ingress returns
// to every client request immediately upon enqueueing. It is not a commit
// confirmation.
var AckResponse = []byte("Ack")
