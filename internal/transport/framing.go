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

// Package transport is the narrow wire-plumbing layer: length-delimited
// framing over TCP, a server that hands every frame to a handler, and a
// reliable sender that retries, up to a configured number of attempts,
// until an ack is observed. None of it understands protocol semantics; it
// moves opaque frames.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const maxFrameSize = 64 << 20 // 64MiB; generous enough for any certificate/proof this protocol produces.

// WriteFrame writes a single length-delimited frame: a 4-byte big-endian
// length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("transport: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a single length-delimited frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds maximum %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("transport: read frame payload: %w", err)
	}
	return buf, nil
}

// Dial opens a length-delimited connection to addr.
func Dial(addr string) (net.Conn, error) {
	return net.Dial("tcp", addr)
}

// bufferedConn wraps a net.Conn with a buffered reader, since ReadFrame
// issues many small reads.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func newBufferedConn(c net.Conn) *bufferedConn {
	return &bufferedConn{Conn: c, r: bufio.NewReader(c)}
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }
