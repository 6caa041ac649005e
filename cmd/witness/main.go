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

// witness runs a single committee member: the PublishHandler state
// machine and the SyncHelper that serves certificates to lagging peers.
//
// Usage:
//
//	witness --committee=... --keypair=... --secure_storage=... --audit_storage=... --listen_addr=...
//	witness generate --keypair=...
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/internal/committee"
	"github.com/transparency-dev/witness-quorum/internal/keys"
	"github.com/transparency-dev/witness-quorum/internal/store"
	"github.com/transparency-dev/witness-quorum/internal/witness"
)

var (
	listenAddr    = flag.String("listen_addr", ":8081", "Address to listen for IdP connections on.")
	committeePath = flag.String("committee", "", "Path to the committee JSON file describing the IdP and witnesses.")
	keypairPath   = flag.String("keypair", "", "Path to this witness's Ed25519 keypair JSON file.")
	secureDir     = flag.String("secure_storage", "", "Directory backing this witness's persisted WitnessState.")
	auditDir      = flag.String("audit_storage", "", "Directory backing this witness's committed-certificate log.")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "generate" {
		runGenerate(os.Args[2:])
		return
	}

	klog.InitFlags(nil)
	flag.Parse()
	runWitness()
}

// runGenerate implements the "generate" subcommand: write a fresh Ed25519
// keypair file and print its path and public key.
func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	keypairPath := fs.String("keypair", "", "Path to write the generated keypair JSON file to.")
	fs.Parse(args)

	if *keypairPath == "" {
		klog.Exit("generate: --keypair is required")
	}
	pk, err := keys.Generate()
	if err != nil {
		klog.Exitf("generate: %v", err)
	}
	if err := pk.Export(*keypairPath); err != nil {
		klog.Exitf("generate: %v", err)
	}
	fmt.Printf("wrote keypair to %s\npublic key: %x\n", *keypairPath, pk.PublicKey)
}

func runWitness() {
	if *committeePath == "" {
		klog.Exit("--committee is required")
	}
	if *keypairPath == "" {
		klog.Exit("--keypair is required")
	}
	if *secureDir == "" || *auditDir == "" {
		klog.Exit("--secure_storage and --audit_storage are both required")
	}

	comm, err := committee.Import(*committeePath)
	if err != nil {
		klog.Exitf("failed to load committee: %v", err)
	}
	priv, err := keys.Import(*keypairPath)
	if err != nil {
		klog.Exitf("failed to load keypair: %v", err)
	}

	secureDB, err := store.Open(*secureDir)
	if err != nil {
		klog.Exitf("failed to open secure storage: %v", err)
	}
	defer secureDB.Close()
	auditDB, err := store.Open(*auditDir)
	if err != nil {
		klog.Exitf("failed to open audit storage: %v", err)
	}
	defer auditDB.Close()

	node, err := witness.NewNode(secureDB, auditDB, comm.Idp.PublicKey, priv, comm)
	if err != nil {
		klog.Exitf("failed to construct witness node: %v", err)
	}

	klog.Infof("witness: public key %x, starting at sequence %d", priv.PublicKey, node.State().SequenceNumber)
	if err := node.Run(*listenAddr); err != nil {
		klog.Exitf("witness: %v", err)
	}
}
