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

package transport

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"k8s.io/klog/v2"
)

// Result is what a Handle eventually resolves to: the first ack payload
// received from the other side, or the error that made delivery
// impossible (only returned once retries are exhausted or ctx is done).
type Result struct {
	Response []byte
	Err      error
}

// Handle is a single in-flight reliable send. It resolves at most once.
// Handles may be waited on in any order; abandoning one (never calling
// Wait) leaks nothing beyond the one buffered slot in its channel.
type Handle struct {
	addr string
	ch   chan Result
}

// Addr is the destination this handle is delivering to.
func (h *Handle) Addr() string { return h.addr }

// Wait blocks until the send resolves, or ctx is done.
func (h *Handle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case r := <-h.ch:
		return r.Response, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReliableSender sends a payload to an address and returns a Handle for the
// first ack, reconnecting and retrying on transient dial/write/read
// failures. It never duplicates from the caller's perspective: exactly one
// Result is ever delivered per Handle. Idempotency of the request itself
// is the receiver's responsibility (see internal/witness), since a retried
// send may still reach the peer more than once at the TCP level.
type ReliableSender struct {
	attempts uint
	delay    time.Duration
}

// NewReliableSender builds a sender with the given retry budget.
func NewReliableSender(attempts uint, delay time.Duration) *ReliableSender {
	if attempts == 0 {
		attempts = 10
	}
	if delay == 0 {
		delay = 50 * time.Millisecond
	}
	return &ReliableSender{attempts: attempts, delay: delay}
}

// Send delivers payload to addr and returns a Handle for the reply.
func (s *ReliableSender) Send(ctx context.Context, addr string, payload []byte) *Handle {
	h := &Handle{addr: addr, ch: make(chan Result, 1)}
	go func() {
		var resp []byte
		err := retry.Do(
			func() error {
				conn, err := Dial(addr)
				if err != nil {
					return err
				}
				defer conn.Close()
				if d, ok := ctx.Deadline(); ok {
					conn.SetDeadline(d)
				}
				if err := WriteFrame(conn, payload); err != nil {
					return err
				}
				r, err := ReadFrame(newBufferedConn(conn))
				if err != nil {
					return err
				}
				resp = r
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(s.attempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(s.delay),
			retry.OnRetry(func(n uint, err error) {
				klog.V(1).Infof("transport: retrying send to %s (attempt %d): %v", addr, n+1, err)
			}),
		)
		h.ch <- Result{Response: resp, Err: err}
	}()
	return h
}

// Broadcast sends payload to every address in addrs concurrently, returning
// one Handle per destination in the same order.
func (s *ReliableSender) Broadcast(ctx context.Context, addrs []string, payload []byte) []*Handle {
	handles := make([]*Handle, len(addrs))
	for i, addr := range addrs {
		handles[i] = s.Send(ctx, addr, payload)
	}
	return handles
}
