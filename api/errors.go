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

import "fmt"

// ErrorKind enumerates the wire error taxonomy. Values are stable on the
// wire; do not renumber.
type ErrorKind uint8

const (
	MalformedNotificationID ErrorKind = iota
	InvalidSignature
	UnknownWitness
	WitnessReuse
	CertificateRequiresQuorum
	SerializationError
	ProofVerificationFailed
	UnexpectedSequenceNumber
	ConflictingNotification
	MissingEarlierCertificates
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedNotificationID:
		return "MalformedNotificationId"
	case InvalidSignature:
		return "InvalidSignature"
	case UnknownWitness:
		return "UnknownWitness"
	case WitnessReuse:
		return "WitnessReuse"
	case CertificateRequiresQuorum:
		return "CertificateRequiresQuorum"
	case SerializationError:
		return "SerializationError"
	case ProofVerificationFailed:
		return "ProofVerificationFailed"
	case UnexpectedSequenceNumber:
		return "UnexpectedSequenceNumber"
	case ConflictingNotification:
		return "ConflictingNotification"
	case MissingEarlierCertificates:
		return "MissingEarlierCertificates"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// MessageError covers pure deserialization/signature/VKD-proof faults.
// It is always safe to report to the peer: it never indicates witness
// protocol state.
type MessageError struct {
	Kind ErrorKind

	Digest  Digest    // MalformedNotificationId
	PubKey  PublicKey // UnknownWitness, WitnessReuse
	Text    string    // InvalidSignature, SerializationError, ProofVerificationFailed
}

func (e *MessageError) Error() string {
	switch e.Kind {
	case MalformedNotificationID:
		return fmt.Sprintf("malformed notification id: %x", e.Digest)
	case UnknownWitness:
		return fmt.Sprintf("unknown witness: %x", e.PubKey)
	case WitnessReuse:
		return fmt.Sprintf("duplicate author: %x", e.PubKey)
	case CertificateRequiresQuorum:
		return "certificate does not meet quorum threshold"
	case InvalidSignature, SerializationError, ProofVerificationFailed:
		return fmt.Sprintf("%s: %s", e.Kind, e.Text)
	default:
		return e.Kind.String()
	}
}

// Is reports whether target is a *MessageError with the same Kind, so that
// errors.Is(err, &MessageError{Kind: InvalidSignature}) works regardless of
// the payload fields.
func (e *MessageError) Is(target error) bool {
	t, ok := target.(*MessageError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func NewMalformedNotificationID(d Digest) *MessageError {
	return &MessageError{Kind: MalformedNotificationID, Digest: d}
}

func NewInvalidSignature(reason string) *MessageError {
	return &MessageError{Kind: InvalidSignature, Text: reason}
}

func NewUnknownWitness(pk PublicKey) *MessageError {
	return &MessageError{Kind: UnknownWitness, PubKey: pk}
}

func NewWitnessReuse(pk PublicKey) *MessageError {
	return &MessageError{Kind: WitnessReuse, PubKey: pk}
}

func NewCertificateRequiresQuorum() *MessageError {
	return &MessageError{Kind: CertificateRequiresQuorum}
}

func NewSerializationError(reason string) *MessageError {
	return &MessageError{Kind: SerializationError, Text: reason}
}

func NewProofVerificationFailed(reason string) *MessageError {
	return &MessageError{Kind: ProofVerificationFailed, Text: reason}
}

// WitnessError carries protocol-level faults observed at a witness, wrapping
// a MessageError where the fault originates in message content.
type WitnessError struct {
	Kind ErrorKind

	Wrapped *MessageError // non-nil when Kind wraps a MessageError

	Expected, Got SequenceNumber // UnexpectedSequenceNumber
	Lock, Received Root          // ConflictingNotification
	Sequence       SequenceNumber // MissingEarlierCertificates
}

func (e *WitnessError) Error() string {
	switch e.Kind {
	case UnexpectedSequenceNumber:
		return fmt.Sprintf("unexpected sequence number: expected %d, got %d", e.Expected, e.Got)
	case ConflictingNotification:
		return fmt.Sprintf("conflicting notification: lock=%x received=%x", e.Lock, e.Received)
	case MissingEarlierCertificates:
		return fmt.Sprintf("missing earlier certificates before %d", e.Sequence)
	default:
		if e.Wrapped != nil {
			return e.Wrapped.Error()
		}
		return e.Kind.String()
	}
}

func (e *WitnessError) Unwrap() error {
	if e.Wrapped != nil {
		return e.Wrapped
	}
	return nil
}

func (e *WitnessError) Is(target error) bool {
	t, ok := target.(*WitnessError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func WrapMessageError(err *MessageError) *WitnessError {
	return &WitnessError{Kind: err.Kind, Wrapped: err}
}

func NewUnexpectedSequenceNumber(expected, got SequenceNumber) *WitnessError {
	return &WitnessError{Kind: UnexpectedSequenceNumber, Expected: expected, Got: got}
}

func NewConflictingNotification(lock, received Root) *WitnessError {
	return &WitnessError{Kind: ConflictingNotification, Lock: lock, Received: received}
}

func NewMissingEarlierCertificates(seq SequenceNumber) *WitnessError {
	return &WitnessError{Kind: MissingEarlierCertificates, Sequence: seq}
}

// IdpError is used internally at the IdP; it never crosses the wire.
type IdpError struct {
	witnessErr *WitnessError
	messageErr *MessageError
	reason     string
}

func (e *IdpError) Error() string {
	switch {
	case e.witnessErr != nil:
		return e.witnessErr.Error()
	case e.messageErr != nil:
		return e.messageErr.Error()
	default:
		return e.reason
	}
}

func (e *IdpError) Unwrap() error {
	switch {
	case e.witnessErr != nil:
		return e.witnessErr
	case e.messageErr != nil:
		return e.messageErr
	default:
		return nil
	}
}

func WrapWitnessError(err *WitnessError) *IdpError { return &IdpError{witnessErr: err} }
func WrapMessageErrorAsIdp(err *MessageError) *IdpError { return &IdpError{messageErr: err} }

// UnexpectedProtocolMessage indicates a reply of the wrong shape was
// received for the request in flight; it is logged and discarded, never
// retried.
func UnexpectedProtocolMessage(got string) *IdpError {
	return &IdpError{reason: fmt.Sprintf("unexpected protocol message: %s", got)}
}

// UnexpectedVote indicates a vote arrived for a root the Aggregator is not
// currently tracking.
func UnexpectedVote(reason string) *IdpError {
	return &IdpError{reason: fmt.Sprintf("unexpected vote: %s", reason)}
}
