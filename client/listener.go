// listener.go - Chatroom listener client.
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

package client

import (
	"context"
	"errors"
	"net"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/log"
	"github.com/ghosttalk/ghosttalk/core/pki"
	"github.com/ghosttalk/ghosttalk/core/retry"
	"github.com/ghosttalk/ghosttalk/core/transport"
	"github.com/ghosttalk/ghosttalk/core/worker"
)

// Handler is invoked from the Listener's read loop once per inbound
// message.  The slice is only valid for the duration of the call.
type Handler func(msg []byte)

// Listener is a persistent session on the chatroom.
type Listener struct {
	worker.Worker

	log     *logging.Logger
	conn    net.Conn
	handler Handler

	writeTimeout   time.Duration
	maxMessageSize int

	closedCh chan struct{}
}

// Send writes msg directly on the chatroom session, bypassing the relays.
func (l *Listener) Send(msg []byte) error {
	if len(msg) == 0 {
		return ErrEmptyMessage
	}
	if len(msg) > l.maxMessageSize {
		return ErrMessageTooLarge
	}
	return transport.WriteMessage(l.conn, msg, l.writeTimeout)
}

// ClosedCh returns a channel that is closed when the session ends, either
// by Halt or by the chatroom.
func (l *Listener) ClosedCh() <-chan struct{} {
	return l.closedCh
}

// Halt closes the session and waits for the read loop to return.
func (l *Listener) Halt() {
	l.conn.Close()
	l.Worker.Halt()
}

func (l *Listener) worker() {
	defer close(l.closedCh)

	buf := make([]byte, l.maxMessageSize)
	for {
		n, err := transport.ReadOnce(l.conn, buf, 0)
		if err != nil {
			switch {
			case errors.Is(err, net.ErrClosed):
			case errors.Is(err, transport.ErrPeerClosed):
				l.log.Notice("Chatroom closed the session.")
			default:
				l.log.Warningf("Read failed: %v", err)
			}
			return
		}
		l.handler(buf[:n])
	}
}

// Dial opens a session on the chatroom and starts delivering inbound
// messages to handler.  The initial connection is retried with backoff.
func Dial(ctx context.Context, cfg *config.Config, logBackend *log.Backend, handler Handler) (*Listener, error) {
	doc, err := cfg.Document()
	if err != nil {
		return nil, err
	}

	l := &Listener{
		log:            logBackend.GetLogger("listener"),
		handler:        handler,
		writeTimeout:   cfg.Debug.WriteDeadline(),
		maxMessageSize: cfg.Debug.MaxMessageSize,
		closedCh:       make(chan struct{}),
	}
	err = retry.Do(ctx, retry.DefaultPolicy(), func() error {
		var err error
		l.conn, err = transport.Dial(ctx, pki.TransportTCP, doc.Chatroom, cfg.Debug.ConnectDeadline())
		if err != nil {
			l.log.Debugf("Failed to connect to the chatroom: %v", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	l.log.Noticef("Connected to the chatroom at %v", doc.Chatroom)

	l.Go(l.worker)
	return l, nil
}
