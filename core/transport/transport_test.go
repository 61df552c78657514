// transport_test.go - Transport tests.
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

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/core/pki"
)

func TestErrorMatching(t *testing.T) {
	require := require.New(t)

	err := error(&Error{Op: OpConnect, Addr: "127.0.0.1:1", Err: errors.New("refused")})
	require.ErrorIs(err, ErrConnect)
	require.False(errors.Is(err, ErrWrite))

	err = &Error{Op: OpRead, Addr: "127.0.0.1:1", Err: io.EOF}
	require.ErrorIs(err, ErrPeerClosed)
	require.ErrorIs(err, io.EOF)
	require.False(errors.Is(err, ErrRead))

	err = &Error{Op: OpRead, Addr: "127.0.0.1:1", Err: errors.New("reset")}
	require.ErrorIs(err, ErrRead)
	require.False(errors.Is(err, ErrPeerClosed))

	var te *Error
	require.ErrorAs(err, &te)
	require.Equal("127.0.0.1:1", te.Addr)
}

func TestUnsupportedNetwork(t *testing.T) {
	require := require.New(t)

	_, err := Listen("udp", "127.0.0.1:0")
	require.ErrorIs(err, ErrUnsupportedNetwork)

	_, err = Dial(context.Background(), "udp", "127.0.0.1:1", time.Second)
	require.ErrorIs(err, ErrConnect)
	require.ErrorIs(err, ErrUnsupportedNetwork)
}

func TestReadMessage(t *testing.T) {
	require := require.New(t)

	a, b := net.Pipe()
	go func(w net.Conn) {
		w.Write(bytes.Repeat([]byte{'x'}, 100))
		w.Close()
	}(a)
	msg, err := ReadMessage(b, 64, time.Second)
	require.NoError(err)
	require.Len(msg, 64)
	b.Close()

	a, b = net.Pipe()
	defer a.Close()
	_, err = ReadMessage(b, 64, 50*time.Millisecond)
	require.ErrorIs(err, ErrRead)
}

func TestReadOnce(t *testing.T) {
	require := require.New(t)

	a, b := net.Pipe()
	go func() {
		a.Write([]byte("one message"))
		a.Close()
	}()
	buf := make([]byte, DefaultMaxMessageSize)
	n, err := ReadOnce(b, buf, time.Second)
	require.NoError(err)
	require.Equal("one message", string(buf[:n]))

	_, err = ReadOnce(b, buf, time.Second)
	require.ErrorIs(err, ErrPeerClosed)
}

func testForwarder(t *testing.T, network string) {
	require := require.New(t)

	l, err := Listen(network, "127.0.0.1:0")
	require.NoError(err)
	defer l.Close()

	payload := bytes.Repeat([]byte("onion"), 600)
	gotCh := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			close(gotCh)
			return
		}
		defer conn.Close()
		b, _ := ReadMessage(conn, 2*len(payload), 5*time.Second)
		gotCh <- b
	}()

	f := NewForwarder(logging.MustGetLogger("test"), 5*time.Second, 5*time.Second)
	require.NoError(f.Send(context.Background(), network, l.Addr().String(), payload))

	select {
	case got := <-gotCh:
		require.Equal(payload, got)
	case <-time.After(10 * time.Second):
		t.Fatal("payload never arrived")
	}
}

func TestForwarderTCP(t *testing.T) {
	testForwarder(t, pki.TransportTCP)
}

func TestForwarderQUIC(t *testing.T) {
	testForwarder(t, pki.TransportQUIC)
}

func TestForwarderConnectFailure(t *testing.T) {
	require := require.New(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	addr := l.Addr().String()
	l.Close()

	f := NewForwarder(logging.MustGetLogger("test"), time.Second, time.Second)
	err = f.Send(context.Background(), pki.TransportTCP, addr, []byte("lost"))
	require.ErrorIs(err, ErrConnect)

	var te *Error
	require.ErrorAs(err, &te)
	require.Equal(OpConnect, te.Op)
	require.Equal(addr, te.Addr)
}

func TestQUICListenerClose(t *testing.T) {
	require := require.New(t)

	l, err := Listen(pki.TransportQUIC, "127.0.0.1:0")
	require.NoError(err)
	require.NoError(l.Close())

	_, err = l.Accept()
	require.ErrorIs(err, net.ErrClosed)
	_, err = l.Accept()
	require.ErrorIs(err, net.ErrClosed)
}
