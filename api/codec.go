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
	"bytes"
	"encoding/binary"
	"fmt"
)

// The wire format below is hand-rolled rather than delegated to a generic
// codec library: every message is small, fixed in shape, and the format
// needs to be stable across the Go rewrite's lifetime, not merely
// convenient to produce. Variable-length fields are a uint32 big-endian
// length prefix followed by that many bytes.

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) putUint8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) putBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) putUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) putFixed(b []byte) { e.buf.Write(b) }

func (e *encoder) putBytes(b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	e.buf.Write(l[:])
	e.buf.Write(b)
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

type decoder struct {
	b   []byte
	off int
}

func newDecoder(b []byte) *decoder { return &decoder{b: b} }

func (d *decoder) uint8() (uint8, error) {
	if d.off+1 > len(d.b) {
		return 0, fmt.Errorf("api: short buffer reading uint8")
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.uint8()
	return v != 0, err
}

func (d *decoder) uint64() (uint64, error) {
	if d.off+8 > len(d.b) {
		return 0, fmt.Errorf("api: short buffer reading uint64")
	}
	v := binary.BigEndian.Uint64(d.b[d.off : d.off+8])
	d.off += 8
	return v, nil
}

func (d *decoder) fixed(n int) ([]byte, error) {
	if d.off+n > len(d.b) {
		return nil, fmt.Errorf("api: short buffer reading %d fixed bytes", n)
	}
	v := d.b[d.off : d.off+n]
	d.off += n
	return v, nil
}

func (d *decoder) variable() ([]byte, error) {
	if d.off+4 > len(d.b) {
		return nil, fmt.Errorf("api: short buffer reading length prefix")
	}
	n := binary.BigEndian.Uint32(d.b[d.off : d.off+4])
	d.off += 4
	return d.fixed(int(n))
}

func (d *decoder) done() bool { return d.off == len(d.b) }

// --- AuditProof ---

func (p AuditProof) marshal(e *encoder) {
	e.putUint64(p.Size1)
	e.putUint64(p.Size2)
	e.putUint64(uint64(len(p.Nodes)))
	for _, n := range p.Nodes {
		e.putBytes(n)
	}
}

func unmarshalAuditProof(d *decoder) (AuditProof, error) {
	size1, err := d.uint64()
	if err != nil {
		return AuditProof{}, err
	}
	size2, err := d.uint64()
	if err != nil {
		return AuditProof{}, err
	}
	n, err := d.uint64()
	if err != nil {
		return AuditProof{}, err
	}
	nodes := make([][]byte, n)
	for i := range nodes {
		b, err := d.variable()
		if err != nil {
			return AuditProof{}, err
		}
		nodes[i] = append([]byte{}, b...)
	}
	return AuditProof{Size1: size1, Size2: size2, Nodes: nodes}, nil
}

// --- Notification ---

func (n *Notification) MarshalBinary() ([]byte, error) {
	var e encoder
	e.putFixed(n.Root[:])
	n.Proof.marshal(&e)
	e.putUint64(n.SequenceNumber)
	e.putFixed(n.ID[:])
	e.putFixed(n.Signature[:])
	return e.bytes(), nil
}

func (n *Notification) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	root, err := d.fixed(32)
	if err != nil {
		return err
	}
	proof, err := unmarshalAuditProof(d)
	if err != nil {
		return err
	}
	seq, err := d.uint64()
	if err != nil {
		return err
	}
	id, err := d.fixed(32)
	if err != nil {
		return err
	}
	sig, err := d.fixed(64)
	if err != nil {
		return err
	}
	copy(n.Root[:], root)
	n.Proof = proof
	n.SequenceNumber = seq
	copy(n.ID[:], id)
	copy(n.Signature[:], sig)
	return nil
}

// --- Vote ---

func (v *Vote) marshal(e *encoder) {
	e.putFixed(v.Root[:])
	e.putUint64(v.SequenceNumber)
	e.putFixed(v.Author[:])
	e.putFixed(v.Signature[:])
}

func unmarshalVote(d *decoder) (*Vote, error) {
	root, err := d.fixed(32)
	if err != nil {
		return nil, err
	}
	seq, err := d.uint64()
	if err != nil {
		return nil, err
	}
	author, err := d.fixed(32)
	if err != nil {
		return nil, err
	}
	sig, err := d.fixed(64)
	if err != nil {
		return nil, err
	}
	v := &Vote{SequenceNumber: seq}
	copy(v.Root[:], root)
	copy(v.Author[:], author)
	copy(v.Signature[:], sig)
	return v, nil
}

func (v *Vote) MarshalBinary() ([]byte, error) {
	var e encoder
	v.marshal(&e)
	return e.bytes(), nil
}

func (v *Vote) UnmarshalBinary(data []byte) error {
	got, err := unmarshalVote(newDecoder(data))
	if err != nil {
		return err
	}
	*v = *got
	return nil
}

// --- Certificate ---

func (c *Certificate) MarshalBinary() ([]byte, error) {
	var e encoder
	e.putFixed(c.Root[:])
	e.putUint64(c.SequenceNumber)
	e.putUint64(uint64(len(c.Votes)))
	for _, v := range c.Votes {
		e.putFixed(v.Author[:])
		e.putFixed(v.Signature[:])
	}
	return e.bytes(), nil
}

func (c *Certificate) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	root, err := d.fixed(32)
	if err != nil {
		return err
	}
	seq, err := d.uint64()
	if err != nil {
		return err
	}
	n, err := d.uint64()
	if err != nil {
		return err
	}
	votes := make([]VoteSig, n)
	for i := range votes {
		author, err := d.fixed(32)
		if err != nil {
			return err
		}
		sig, err := d.fixed(64)
		if err != nil {
			return err
		}
		copy(votes[i].Author[:], author)
		copy(votes[i].Signature[:], sig)
	}
	copy(c.Root[:], root)
	c.SequenceNumber = seq
	c.Votes = votes
	return nil
}

// --- State ---

func (s *State) MarshalBinary() ([]byte, error) {
	var e encoder
	e.putFixed(s.Root[:])
	e.putUint64(s.SequenceNumber)
	e.putBool(s.Lock != nil)
	if s.Lock != nil {
		s.Lock.marshal(&e)
	}
	return e.bytes(), nil
}

func (s *State) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	root, err := d.fixed(32)
	if err != nil {
		return err
	}
	seq, err := d.uint64()
	if err != nil {
		return err
	}
	hasLock, err := d.boolean()
	if err != nil {
		return err
	}
	var lock *Vote
	if hasLock {
		lock, err = unmarshalVote(d)
		if err != nil {
			return err
		}
	}
	copy(s.Root[:], root)
	s.SequenceNumber = seq
	s.Lock = lock
	return nil
}

// --- CertificateQuery ---

func (q *CertificateQuery) MarshalBinary() ([]byte, error) {
	var e encoder
	e.putUint64(q.SequenceNumber)
	return e.bytes(), nil
}

func (q *CertificateQuery) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	seq, err := d.uint64()
	if err != nil {
		return err
	}
	q.SequenceNumber = seq
	return nil
}

// --- MessageError ---

func (e *MessageError) marshal(enc *encoder) {
	enc.putUint8(uint8(e.Kind))
	switch e.Kind {
	case MalformedNotificationID:
		enc.putFixed(e.Digest[:])
	case UnknownWitness, WitnessReuse:
		enc.putFixed(e.PubKey[:])
	case InvalidSignature, SerializationError, ProofVerificationFailed:
		enc.putBytes([]byte(e.Text))
	}
}

func unmarshalMessageError(d *decoder) (*MessageError, error) {
	k, err := d.uint8()
	if err != nil {
		return nil, err
	}
	me := &MessageError{Kind: ErrorKind(k)}
	switch me.Kind {
	case MalformedNotificationID:
		b, err := d.fixed(32)
		if err != nil {
			return nil, err
		}
		copy(me.Digest[:], b)
	case UnknownWitness, WitnessReuse:
		b, err := d.fixed(32)
		if err != nil {
			return nil, err
		}
		copy(me.PubKey[:], b)
	case InvalidSignature, SerializationError, ProofVerificationFailed:
		b, err := d.variable()
		if err != nil {
			return nil, err
		}
		me.Text = string(b)
	}
	return me, nil
}

// --- WitnessError ---

const witnessErrorWrapsMessage = uint8(255)

func (e *WitnessError) marshal(enc *encoder) {
	switch e.Kind {
	case UnexpectedSequenceNumber:
		enc.putUint8(uint8(e.Kind))
		enc.putUint64(e.Expected)
		enc.putUint64(e.Got)
	case ConflictingNotification:
		enc.putUint8(uint8(e.Kind))
		enc.putFixed(e.Lock[:])
		enc.putFixed(e.Received[:])
	case MissingEarlierCertificates:
		enc.putUint8(uint8(e.Kind))
		enc.putUint64(e.Sequence)
	default:
		enc.putUint8(witnessErrorWrapsMessage)
		e.Wrapped.marshal(enc)
	}
}

func unmarshalWitnessError(d *decoder) (*WitnessError, error) {
	k, err := d.uint8()
	if err != nil {
		return nil, err
	}
	if k == witnessErrorWrapsMessage {
		me, err := unmarshalMessageError(d)
		if err != nil {
			return nil, err
		}
		return WrapMessageError(me), nil
	}
	we := &WitnessError{Kind: ErrorKind(k)}
	switch we.Kind {
	case UnexpectedSequenceNumber:
		we.Expected, err = d.uint64()
		if err != nil {
			return nil, err
		}
		we.Got, err = d.uint64()
		if err != nil {
			return nil, err
		}
	case ConflictingNotification:
		lock, err := d.fixed(32)
		if err != nil {
			return nil, err
		}
		received, err := d.fixed(32)
		if err != nil {
			return nil, err
		}
		copy(we.Lock[:], lock)
		copy(we.Received[:], received)
	case MissingEarlierCertificates:
		we.Sequence, err = d.uint64()
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("api: unknown witness error kind %d", k)
	}
	return we, nil
}

// --- VoteResult / StateResult ---

func (r *VoteResult) marshal(enc *encoder) {
	enc.putBool(r.Err == nil)
	if r.Err == nil {
		r.Vote.marshal(enc)
	} else {
		r.Err.marshal(enc)
	}
}

func unmarshalVoteResult(d *decoder) (*VoteResult, error) {
	ok, err := d.boolean()
	if err != nil {
		return nil, err
	}
	if ok {
		v, err := unmarshalVote(d)
		if err != nil {
			return nil, err
		}
		return &VoteResult{Vote: v}, nil
	}
	we, err := unmarshalWitnessError(d)
	if err != nil {
		return nil, err
	}
	return &VoteResult{Err: we}, nil
}

func (r *StateResult) marshal(enc *encoder) {
	enc.putBool(r.Err == nil)
	if r.Err == nil {
		s, _ := r.State.MarshalBinary()
		enc.putBytes(s)
	} else {
		r.Err.marshal(enc)
	}
}

func unmarshalStateResult(d *decoder) (*StateResult, error) {
	ok, err := d.boolean()
	if err != nil {
		return nil, err
	}
	if ok {
		b, err := d.variable()
		if err != nil {
			return nil, err
		}
		s := &State{}
		if err := s.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return &StateResult{State: s}, nil
	}
	we, err := unmarshalWitnessError(d)
	if err != nil {
		return nil, err
	}
	return &StateResult{Err: we}, nil
}

// --- IdpToWitness / WitnessToIdp tagged unions ---

const (
	tagNotification = iota
	tagCertificate
	tagStateQuery
	tagCertificateQuery
)

func (m *IdpToWitness) MarshalBinary() ([]byte, error) {
	var e encoder
	switch {
	case m.Notification != nil:
		e.putUint8(tagNotification)
		b, err := m.Notification.MarshalBinary()
		if err != nil {
			return nil, err
		}
		e.putBytes(b)
	case m.Certificate != nil:
		e.putUint8(tagCertificate)
		b, err := m.Certificate.MarshalBinary()
		if err != nil {
			return nil, err
		}
		e.putBytes(b)
	case m.CertificateQuery != nil:
		e.putUint8(tagCertificateQuery)
		b, err := m.CertificateQuery.MarshalBinary()
		if err != nil {
			return nil, err
		}
		e.putBytes(b)
	default:
		e.putUint8(tagStateQuery)
	}
	return e.bytes(), nil
}

func (m *IdpToWitness) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	tag, err := d.uint8()
	if err != nil {
		return err
	}
	*m = IdpToWitness{}
	switch tag {
	case tagNotification:
		b, err := d.variable()
		if err != nil {
			return err
		}
		n := &Notification{}
		if err := n.UnmarshalBinary(b); err != nil {
			return err
		}
		m.Notification = n
	case tagCertificate:
		b, err := d.variable()
		if err != nil {
			return err
		}
		c := &Certificate{}
		if err := c.UnmarshalBinary(b); err != nil {
			return err
		}
		m.Certificate = c
	case tagCertificateQuery:
		b, err := d.variable()
		if err != nil {
			return err
		}
		q := &CertificateQuery{}
		if err := q.UnmarshalBinary(b); err != nil {
			return err
		}
		m.CertificateQuery = q
	case tagStateQuery:
		m.StateQuery = true
	default:
		return fmt.Errorf("api: unknown IdpToWitness tag %d", tag)
	}
	return nil
}

const (
	tagVote = iota
	tagState
	tagCertificateResponse
)

func (m *WitnessToIdp) MarshalBinary() ([]byte, error) {
	var e encoder
	switch {
	case m.Vote != nil:
		e.putUint8(tagVote)
		m.Vote.marshal(&e)
	case m.State != nil:
		e.putUint8(tagState)
		m.State.marshal(&e)
	case m.hasCertificateResponse:
		e.putUint8(tagCertificateResponse)
		e.putBytes(m.CertificateResponse)
	default:
		return nil, fmt.Errorf("api: empty WitnessToIdp")
	}
	return e.bytes(), nil
}

func (m *WitnessToIdp) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	tag, err := d.uint8()
	if err != nil {
		return err
	}
	*m = WitnessToIdp{}
	switch tag {
	case tagVote:
		v, err := unmarshalVoteResult(d)
		if err != nil {
			return err
		}
		m.Vote = v
	case tagState:
		s, err := unmarshalStateResult(d)
		if err != nil {
			return err
		}
		m.State = s
	case tagCertificateResponse:
		b, err := d.variable()
		if err != nil {
			return err
		}
		m.CertificateResponse = append([]byte(nil), b...)
		m.hasCertificateResponse = true
	default:
		return fmt.Errorf("api: unknown WitnessToIdp tag %d", tag)
	}
	return nil
}
