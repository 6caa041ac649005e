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

// idp runs the identity provider side of the epoch-commit protocol:
// Request Ingress, Batcher, Prover, Publisher and Synchronizer wired
// together and serving client update requests over the wire protocol.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/internal/committee"
	"github.com/transparency-dev/witness-quorum/internal/idp"
	"github.com/transparency-dev/witness-quorum/internal/keys"
	"github.com/transparency-dev/witness-quorum/internal/store"
)

var (
	listenAddr    = flag.String("listen_addr", ":8080", "Address to listen for client update requests on.")
	committeePath = flag.String("committee", "", "Path to the committee JSON file describing the IdP and witnesses.")
	keypairPath   = flag.String("keypair", "", "Path to this IdP's Ed25519 keypair JSON file.")
	dataDir       = flag.String("data_storage", "", "Directory backing the verifiable key directory.")
	secureDir     = flag.String("secure_storage", "", "Directory backing the last-notification crash-recovery record.")
	syncDir       = flag.String("sync_storage", "", "Directory backing the certificate log served to lagging witnesses.")

	batchSize    = flag.Int("batch_size", 256, "Maximum number of update requests per sealed batch.")
	maxBatchAge  = flag.Duration("max_batch_delay", time.Second, "Maximum time an incomplete batch waits before being sealed.")
	queueDepth   = flag.Int("queue_depth", 4096, "Depth of the bounded ingress queue providing client back-pressure.")
	maxInFlight  = flag.Int("max_sync_in_flight", 16, "Per-witness bound on in-flight synchronizer sends.")
	sendAttempts = flag.Uint("send_attempts", 10, "Number of attempts the reliable sender makes before giving up on a single send.")
	sendDelay    = flag.Duration("send_delay", 50*time.Millisecond, "Base backoff delay between reliable-sender retries.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *committeePath == "" {
		klog.Exit("--committee is required")
	}
	if *keypairPath == "" {
		klog.Exit("--keypair is required")
	}
	if *dataDir == "" || *secureDir == "" || *syncDir == "" {
		klog.Exit("--data_storage, --secure_storage and --sync_storage are all required")
	}

	comm, err := committee.Import(*committeePath)
	if err != nil {
		klog.Exitf("failed to load committee: %v", err)
	}
	priv, err := keys.Import(*keypairPath)
	if err != nil {
		klog.Exitf("failed to load keypair: %v", err)
	}

	dataDB, err := store.Open(*dataDir)
	if err != nil {
		klog.Exitf("failed to open data storage: %v", err)
	}
	defer dataDB.Close()
	secureDB, err := store.Open(*secureDir)
	if err != nil {
		klog.Exitf("failed to open secure storage: %v", err)
	}
	defer secureDB.Close()
	syncDB, err := store.Open(*syncDir)
	if err != nil {
		klog.Exitf("failed to open sync storage: %v", err)
	}
	defer syncDB.Close()

	cfg := idp.DefaultConfig(*listenAddr)
	cfg.BatchSize = *batchSize
	cfg.BatchAge = *maxBatchAge
	cfg.QueueDepth = *queueDepth
	cfg.MaxInFlightPerWitness = *maxInFlight
	cfg.SendAttempts = *sendAttempts
	cfg.SendDelay = *sendDelay

	node, err := idp.NewNode(cfg, dataDB, secureDB, syncDB, priv, comm)
	if err != nil {
		klog.Exitf("failed to construct IdP node: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		node.Close()
	}()

	klog.Infof("idp: starting with %d witnesses, quorum threshold %d", len(comm.Witnesses), comm.QuorumThreshold())
	if err := node.Run(ctx); err != nil {
		klog.Exitf("idp: %v", err)
	}
}
