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

// hammer is a load generator for an IdP: a pool of workers submits
// UpdateRequest messages over the wire protocol and confirms each is
// acknowledged.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/witness-quorum/api"
	"github.com/transparency-dev/witness-quorum/internal/transport"
)

var (
	idpAddr       = flag.String("idp_addr", "", "Address of the IdP's client-facing listener.")
	numWriters    = flag.Int("num_writers", 4, "Number of concurrent submitting workers.")
	maxWriteOps   = flag.Int("max_write_ops", 100, "Maximum total submit operations per second across all workers.")
	valueSize     = flag.Int("value_size", 16, "Size in bytes of each generated update value.")
	leafWriteGoal = flag.Int64("write_goal", 0, "Exit after this many acknowledged submissions, or 0 to run until max_runtime or interrupted.")
	maxRunTime    = flag.Duration("max_runtime", 0, "Exit after this much time has passed, or 0 to keep going.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *idpAddr == "" {
		klog.Exit("--idp_addr is required")
	}
	if *numWriters <= 0 {
		klog.Exit("--num_writers must be positive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *maxRunTime > 0 {
		var rtCancel context.CancelFunc
		ctx, rtCancel = context.WithTimeout(ctx, *maxRunTime)
		defer rtCancel()
	}

	var throttle <-chan time.Time
	if *maxWriteOps > 0 {
		interval := time.Second / time.Duration(*maxWriteOps)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		throttle = ticker.C
	}

	var (
		submitted atomic.Int64
		acked     atomic.Int64
		failed    atomic.Int64
	)

	var wg sync.WaitGroup
	for w := 0; w < *numWriters; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			src := rand.NewPCG(uint64(worker), uint64(worker)*2+1)
			rng := rand.New(src)
			for {
				if *leafWriteGoal > 0 && acked.Load() >= *leafWriteGoal {
					return
				}
				if throttle != nil {
					select {
					case <-ctx.Done():
						return
					case <-throttle:
					}
				} else if ctx.Err() != nil {
					return
				}

				req := randomUpdate(rng, *valueSize)
				submitted.Add(1)
				if err := submitOnce(ctx, *idpAddr, req); err != nil {
					failed.Add(1)
					klog.Warningf("worker %d: submit failed: %v", worker, err)
					continue
				}
				acked.Add(1)
			}
		}(w)
	}

	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				klog.Infof("submitted=%d acked=%d failed=%d", submitted.Load(), acked.Load(), failed.Load())
			}
		}
	}()

	wg.Wait()
	cancel()
	<-reportDone
	klog.Infof("done: submitted=%d acked=%d failed=%d", submitted.Load(), acked.Load(), failed.Load())
}

func randomUpdate(rng *rand.Rand, valueSize int) *api.UpdateRequest {
	label := make([]byte, 16)
	rng.Read(label)
	value := make([]byte, valueSize)
	rng.Read(value)
	return &api.UpdateRequest{Label: label, Value: value}
}

// submitOnce dials a fresh connection, writes a single UpdateRequest frame
// and confirms the ingress Ack. It does not wait for the request's batch to
// be committed; that is the Batcher/Publisher's concern, not the client's.
func submitOnce(ctx context.Context, addr string, req *api.UpdateRequest) error {
	conn, err := transport.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	payload, err := req.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := transport.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	resp, err := transport.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if !bytes.Equal(resp, api.AckResponse) {
		return fmt.Errorf("unexpected response %q, want ack", resp)
	}
	return nil
}
