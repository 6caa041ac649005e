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
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/committee"
	"github.com/transparency-dev/witness-quorum/internal/keys"
	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/transport"
	"github.com/transparency-dev/witness-quorum/internal/vkd"
)

// Config holds everything needed to stand up an IdP node.
type Config struct {
	ListenAddr string

	BatchSize  int
	BatchAge   time.Duration
	QueueDepth int

	MaxInFlightPerWitness int
	SendAttempts          uint
	SendDelay             time.Duration
	MaxConcurrentAnalyses int

	DedupeCacheSize int
}

// DefaultConfig returns the values the teacher's own posix personality uses
// for analogous batching knobs, adjusted to this protocol's vocabulary.
func DefaultConfig(listenAddr string) Config {
	return Config{
		ListenAddr:            listenAddr,
		BatchSize:             256,
		BatchAge:              time.Second,
		QueueDepth:            4096,
		MaxInFlightPerWitness: 16,
		SendAttempts:          10,
		SendDelay:             50 * time.Millisecond,
		MaxConcurrentAnalyses: DefaultMaxConcurrentAnalyses,
		DedupeCacheSize:       8192,
	}
}

// Node is a fully wired IdP: directory, key, committee, and the
// Batcher/Prover/Publisher/Synchronizer pipeline between them.
type Node struct {
	cfg Config

	dir     *vkd.Directory
	priv    *keys.PrivateKey
	comm    *committee.Committee
	batcher *Batcher
	prover  *Prover
	pub     *Publisher
	sync    *Synchronizer
	dedupe  *Dedupe

	batches       chan Batch
	notifications chan *api.Notification

	server *transport.Server
}

// NewNode wires a Node. dataDB backs the VKD; secureDB holds the last
// notification record; syncDB backs the certificate log. All three may be
// separate Store instances pointed at separate directories, as the
// security model requires the secure record to survive independently of
// the directory's own storage.
func NewNode(cfg Config, dataDB, secureDB, syncDB *store.Store, priv *keys.PrivateKey, comm *committee.Committee) (*Node, error) {
	dir, err := vkd.Open(dataDB)
	if err != nil {
		return nil, err
	}

	notifications := make(chan *api.Notification, cfg.QueueDepth)
	batches := make(chan Batch, 1)

	sender := transport.NewReliableSender(cfg.SendAttempts, cfg.SendDelay)
	sync := NewSynchronizer(syncDB, sender, cfg.MaxInFlightPerWitness)
	pub := NewPublisher(comm, secureDB, sender, sync, cfg.MaxConcurrentAnalyses)
	prover := NewProver(dir, priv, secureDB, notifications)
	batcher := NewBatcher(cfg.BatchSize, cfg.BatchAge, cfg.QueueDepth, batches)
	dedupe := NewDedupe(cfg.DedupeCacheSize)

	n := &Node{
		cfg:           cfg,
		dir:           dir,
		priv:          priv,
		comm:          comm,
		batcher:       batcher,
		prover:        prover,
		pub:           pub,
		sync:          sync,
		dedupe:        dedupe,
		batches:       batches,
		notifications: notifications,
	}
	return n, nil
}

func (n *Node) Addr() string {
	if n.server == nil {
		return ""
	}
	return n.server.Addr()
}

// handleUpdate is the client-facing ingress handler: enqueue-then-ack.
// Submit can only fail if the node is shutting down (ctx cancelled), which
// the caller treats as fatal to this connection, not to the node.
func (n *Node) handleUpdate(ctx context.Context) transport.Handler {
	return func(raw []byte) ([]byte, error) {
		if n.dedupe.Seen(raw) {
			return api.AckResponse, nil
		}
		if err := n.batcher.Submit(ctx, raw); err != nil {
			return nil, err
		}
		return api.AckResponse, nil
	}
}

// Run starts every pipeline stage, replays any notification left over from
// a prior crash, serves client submissions, and blocks until ctx is
// cancelled.
func (n *Node) Run(ctx context.Context) error {
	srv, err := transport.Listen(n.cfg.ListenAddr, n.handleUpdate(ctx))
	if err != nil {
		return err
	}
	n.server = srv

	go n.sync.Run(ctx)
	go n.batcher.Run(ctx)
	go n.prover.Run(ctx, n.batches)
	go n.publishLoop(ctx)

	if err := n.prover.Recover(ctx); err != nil {
		klog.Warningf("idp: recovery: %v", err)
	}

	klog.Infof("idp: listening on %s", srv.Addr())
	return srv.Serve()
}

// publishLoop hands every Prover-signed notification to the Publisher, in
// order. A Publish failure other than context cancellation is fatal: the
// publish-before-broadcast invariant leaves no safe way to proceed past a
// notification the Publisher could not even attempt to send.
func (n *Node) publishLoop(ctx context.Context) {
	for {
		select {
		case note, ok := <-n.notifications:
			if !ok {
				return
			}
			if err := n.pub.Publish(ctx, note); err != nil {
				if ctx.Err() != nil {
					return
				}
				klog.Exitf("idp: publish failed for sequence %d: %v", note.SequenceNumber, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the node's listener. Storage handles are owned by the
// caller of NewNode and must be closed separately.
func (n *Node) Close() error {
	if n.server == nil {
		return nil
	}
	return n.server.Close()
}
