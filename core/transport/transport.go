// transport.go - Stream transports and one-shot forwarding.
// Copyright (C) 2026  The GhostTalk Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package transport implements the connection-oriented byte stream
// transports used between relays, the chatroom and clients.
//
// The wire format is raw bytes with no framing.  A one-shot hop is a
// connect, a single write of the whole payload, and a close.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ghosttalk/ghosttalk/core/pki"
)

// DefaultMaxMessageSize is the reference read buffer size, and thus the
// largest message any hop will carry.
const DefaultMaxMessageSize = 4096

const (
	// OpConnect is a failure to establish a connection.
	OpConnect = "connect"

	// OpWrite is a failure to write a payload.
	OpWrite = "write"

	// OpRead is a failure to read a payload.
	OpRead = "read"
)

var (
	// ErrConnect matches every connection establishment failure.
	ErrConnect = errors.New("transport: connect failed")

	// ErrWrite matches every write failure.
	ErrWrite = errors.New("transport: write failed")

	// ErrRead matches every read failure other than a clean close.
	ErrRead = errors.New("transport: read failed")

	// ErrPeerClosed is returned when the peer closed the connection.
	ErrPeerClosed = errors.New("transport: peer closed connection")

	// ErrUnsupportedNetwork is returned for an unknown transport.
	ErrUnsupportedNetwork = errors.New("transport: unsupported network")
)

// Error is a failed transport operation.
type Error struct {
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the failed operation.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnect:
		return e.Op == OpConnect
	case ErrWrite:
		return e.Op == OpWrite
	case ErrRead:
		return e.Op == OpRead && !errors.Is(e.Err, io.EOF)
	case ErrPeerClosed:
		return e.Op == OpRead && errors.Is(e.Err, io.EOF)
	}
	return false
}

// Listen binds a listener for network ("tcp" or "quic") on address.
func Listen(network, address string) (net.Listener, error) {
	switch network {
	case pki.TransportTCP:
		return net.Listen("tcp", address)
	case pki.TransportQUIC:
		return listenQUIC(address)
	default:
		return nil, fmt.Errorf("%w: '%v'", ErrUnsupportedNetwork, network)
	}
}

// Dial opens a connection to address over network.  The returned error is
// always an *Error with Op OpConnect.
func Dial(ctx context.Context, network, address string, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		conn net.Conn
		err  error
	)
	switch network {
	case pki.TransportTCP:
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", address)
	case pki.TransportQUIC:
		conn, err = dialQUIC(ctx, address)
	default:
		err = fmt.Errorf("%w: '%v'", ErrUnsupportedNetwork, network)
	}
	if err != nil {
		return nil, &Error{Op: OpConnect, Addr: address, Err: err}
	}
	return conn, nil
}

// WriteMessage writes the whole payload under an optional deadline.
func WriteMessage(conn net.Conn, payload []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return &Error{Op: OpWrite, Addr: remoteAddr(conn), Err: err}
		}
	}
	for off := 0; off < len(payload); {
		n, err := conn.Write(payload[off:])
		if err != nil {
			return &Error{Op: OpWrite, Addr: remoteAddr(conn), Err: err}
		}
		off += n
	}
	return nil
}

// ReadMessage reads a one-shot payload: everything the peer writes before
// closing, up to max bytes.  Bytes past max are never read.
func ReadMessage(conn net.Conn, max int, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, &Error{Op: OpRead, Addr: remoteAddr(conn), Err: err}
		}
	}
	b, err := io.ReadAll(io.LimitReader(conn, int64(max)))
	if err != nil {
		return b, &Error{Op: OpRead, Addr: remoteAddr(conn), Err: err}
	}
	return b, nil
}

// ReadOnce performs a single read into buf, which is treated as one complete
// message.  A clean close is reported as ErrPeerClosed.
func ReadOnce(conn net.Conn, buf []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, &Error{Op: OpRead, Addr: remoteAddr(conn), Err: err}
		}
	}
	n, err := conn.Read(buf)
	if n > 0 {
		// Data first; any error will resurface on the next read.
		return n, nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return 0, &Error{Op: OpRead, Addr: remoteAddr(conn), Err: err}
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "<unknown>"
}
