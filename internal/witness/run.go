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

package witness

import (
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/committee"
	"github.com/transparency-dev/witness-quorum/internal/keys"
	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/transport"
)

// Node is a fully wired witness: the PublishHandler/SyncHelper pair behind
// a dispatch-by-tag network receiver.
type Node struct {
	handler *PublishHandler
	sync    *SyncHelper
	server  *transport.Server

	// mu serializes dispatch. The reliable sender opens a fresh TCP
	// connection per send rather than multiplexing over one persistent
	// connection, so distinct IdP requests can otherwise reach this Node on
	// concurrent connections; PublishHandler requires a single mutator.
	mu sync.Mutex
}

// NewNode wires a Node. secure is the witness's secure storage (the
// WitnessState record); audit is its certificate log, served to peers via
// SyncHelper.
func NewNode(secure, audit *store.Store, idpPK api.PublicKey, priv *keys.PrivateKey, comm *committee.Committee) (*Node, error) {
	sync := NewSyncHelper(audit)
	handler, err := NewPublishHandler(secure, idpPK, priv, comm, sync)
	if err != nil {
		return nil, err
	}
	return &Node{handler: handler, sync: sync}, nil
}

// State returns the witness's current state, for callers that want to log
// or inspect it without reaching into the handler directly.
func (n *Node) State() State {
	return n.handler.State()
}

// Addr returns the bound listen address, once Run has started the server.
func (n *Node) Addr() string {
	if n.server == nil {
		return ""
	}
	return n.server.Addr()
}

// dispatch implements the §4.1 "Network receiver dispatches by message
// tag" component: it is the sole caller into PublishHandler, serialized by
// mu so PublishHandler's "processes messages serially, sole mutator of
// WitnessState" requirement holds across concurrent inbound connections.
func (n *Node) dispatch(raw []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	in := &api.IdpToWitness{}
	if err := in.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("witness: decode request: %w", err)
	}

	var out *api.WitnessToIdp
	switch {
	case in.Notification != nil:
		out = &api.WitnessToIdp{Vote: n.handler.OnNotification(in.Notification)}
	case in.Certificate != nil:
		out = &api.WitnessToIdp{State: n.handler.OnCertificate(in.Certificate, raw)}
	case in.CertificateQuery != nil:
		env, ok := n.sync.Query(in.CertificateQuery.SequenceNumber)
		if !ok {
			// Per §4.6, an absent certificate gets no reply; the requester
			// times out and retries elsewhere. We signal that upward by
			// returning an error the server logs without a reply frame.
			return nil, fmt.Errorf("witness: no certificate at sequence %d", in.CertificateQuery.SequenceNumber)
		}
		out = api.NewCertificateResponse(env)
	case in.StateQuery:
		out = &api.WitnessToIdp{State: n.handler.OnStateQuery()}
	default:
		return nil, fmt.Errorf("witness: empty IdpToWitness message")
	}
	return out.MarshalBinary()
}

// Run starts the witness's listener and blocks until it closes.
func (n *Node) Run(addr string) error {
	srv, err := transport.Listen(addr, n.dispatch)
	if err != nil {
		return err
	}
	n.server = srv
	klog.Infof("witness: listening on %s", srv.Addr())
	return srv.Serve()
}

// Close stops accepting new connections.
func (n *Node) Close() error {
	if n.server == nil {
		return nil
	}
	return n.server.Close()
}
