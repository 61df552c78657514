// quic.go - QUIC stream transport.
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
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"github.com/quic-go/quic-go"
)

const (
	// ALPN is externally visible in the QUIC handshake, so use the common
	// HTTP/3 token rather than something that fingerprints the relay.
	quicALPN = "h3"

	quicStreamAcceptTimeout = 30 * time.Second
	quicLinger              = 5 * time.Second
)

// quicConn wraps a QUIC connection and its single stream as a net.Conn.
type quicConn struct {
	*quic.Stream

	conn      *quic.Conn
	closeOnce sync.Once
}

func (c *quicConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *quicConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close finishes the stream and tears down the connection.
func (c *quicConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Stream.Close()
		c.conn.CloseWithError(0, "")
	})
	return err
}

// closeWrite sends the stream FIN, then waits (bounded) for the peer to
// close the connection so that buffered data is not discarded.
func (c *quicConn) closeWrite() error {
	if err := c.Stream.Close(); err != nil {
		return err
	}
	t := time.NewTimer(quicLinger)
	defer t.Stop()
	select {
	case <-c.conn.Context().Done():
	case <-t.C:
	}
	return nil
}

// quicListener implements net.Listener, yielding one net.Conn per QUIC
// connection once the peer opens its stream.  Stream setup happens off the
// accept path so that a silent peer cannot stall other connections.
type quicListener struct {
	l *quic.Listener

	ctx    context.Context
	cancel context.CancelFunc

	connCh chan net.Conn
	errCh  chan error
}

func (l *quicListener) acceptWorker() {
	for {
		conn, err := l.l.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				err = net.ErrClosed
			}
			l.errCh <- err
			return
		}
		go l.acceptStream(conn)
	}
}

func (l *quicListener) acceptStream(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(l.ctx, quicStreamAcceptTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return
	}
	select {
	case l.connCh <- &quicConn{Stream: stream, conn: conn}:
	case <-l.ctx.Done():
		conn.CloseWithError(0, "")
	}
}

func (l *quicListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.connCh:
		return c, nil
	case err := <-l.errCh:
		// Keep reporting the terminal error on subsequent calls.
		l.errCh <- err
		return nil, err
	}
}

func (l *quicListener) Addr() net.Addr {
	return l.l.Addr()
}

func (l *quicListener) Close() error {
	l.cancel()
	return l.l.Close()
}

func listenQUIC(address string) (net.Listener, error) {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return nil, err
	}
	ql, err := quic.ListenAddr(address, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &quicListener{
		l:      ql,
		ctx:    ctx,
		cancel: cancel,
		connCh: make(chan net.Conn),
		errCh:  make(chan error, 1),
	}
	go l.acceptWorker()
	return l, nil
}

func dialQUIC(ctx context.Context, address string) (net.Conn, error) {
	// The link is not authenticated; confidentiality comes from the onion
	// layers.
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicALPN},
	}
	conn, err := quic.DialAddr(ctx, address, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	return &quicConn{Stream: stream, conn: conn}, nil
}

// generateTLSConfig builds a throwaway self-signed certificate.
func generateTLSConfig() (*tls.Config, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, pubKey, privKey)
	if err != nil {
		return nil, err
	}
	pkb, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkb})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicALPN},
	}, nil
}
