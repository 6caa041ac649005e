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
	"errors"
	"io"
	"net"

	"k8s.io/klog/v2"
)

// Handler processes one decoded request frame and returns the bytes of the
// reply frame. Dispatch-by-tag (deciding what kind of message request is)
// happens inside the handler, not here: this layer only knows about bytes.
type Handler func(request []byte) (response []byte, err error)

// Server accepts connections and, for every frame received on a
// connection, invokes Handler and writes its result back as the next
// frame on that same connection. One goroutine per connection; receivers
// are expected to be cheap (protocol-level state machines, not blocking
// I/O) so this scales to the committee sizes this protocol targets.
type Server struct {
	ln      net.Listener
	handler Handler
}

// Listen starts a Server bound to addr.
func Listen(addr string, h Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, handler: h}, nil
}

// Addr returns the bound listen address (useful when addr was ":0").
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks accepting connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	r := newBufferedConn(conn)
	for {
		req, err := ReadFrame(r)
		if err != nil {
			if err != io.EOF {
				klog.V(1).Infof("transport: connection from %v closed: %v", conn.RemoteAddr(), err)
			}
			return
		}
		resp, err := s.handler(req)
		if err != nil {
			klog.Warningf("transport: handler error from %v: %v", conn.RemoteAddr(), err)
			return
		}
		if err := WriteFrame(conn, resp); err != nil {
			klog.V(1).Infof("transport: write to %v failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }
