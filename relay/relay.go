// relay.go - Onion relay node.
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

// Package relay implements the relay node: it peels one layer off every
// inbound message and forwards the rest to a randomly chosen next hop.
package relay

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/log"
	"github.com/ghosttalk/ghosttalk/core/onion"
	"github.com/ghosttalk/ghosttalk/core/pki"
	"github.com/ghosttalk/ghosttalk/core/transport"
	"github.com/ghosttalk/ghosttalk/core/worker"
	"github.com/ghosttalk/ghosttalk/internal/instrument"
)

// Drop reasons, also used as metric labels.
const (
	DropEmpty          = "empty"
	DropAuthentication = "authentication"
	DropRead           = "read"
	DropForward        = "forward"
)

// Outcome describes what a relay did with one inbound message.
type Outcome struct {
	// TraceID identifies the message in the relay's logs.
	TraceID string

	// Dropped is the drop reason, or empty if the message was forwarded.
	Dropped string

	// Target is the address the peeled message was sent to.
	Target string

	// IsTerminal is true iff Target is the chatroom.
	IsTerminal bool

	// Err is the underlying failure for dropped messages, if any.
	Err error
}

// Forwarded returns true iff the message left the relay.
func (o *Outcome) Forwarded() bool {
	return o.Dropped == ""
}

type nextHop interface {
	Next() (string, bool)
}

// Node is a relay node.
type Node struct {
	sync.Mutex
	worker.Worker

	log *logging.Logger
	id  pki.RelayID

	registry  *onion.Registry
	router    nextHop
	forwarder *transport.Forwarder
	network   string

	readTimeout    time.Duration
	maxMessageSize int

	l     net.Listener
	conns *list.List

	ctx        context.Context
	cancelFn   context.CancelFunc
	closeAllWg sync.WaitGroup
}

// ID returns the relay's identifier.
func (n *Node) ID() pki.RelayID {
	return n.id
}

// Addr returns the address the relay is listening on.
func (n *Node) Addr() net.Addr {
	return n.l.Addr()
}

// Halt stops the relay, closes every inbound connection and waits for
// in-flight messages to finish.
func (n *Node) Halt() {
	n.l.Close()
	n.Worker.Halt()
	n.cancelFn()

	n.Lock()
	for e := n.conns.Front(); e != nil; e = e.Next() {
		e.Value.(net.Conn).Close()
	}
	n.Unlock()
	n.closeAllWg.Wait()
}

func (n *Node) worker() {
	addr := n.l.Addr()
	n.log.Noticef("Listening on: %v", addr)
	defer func() {
		n.log.Noticef("Stopping listening on: %v", addr)
		n.l.Close() // Usually redundant, but harmless.
	}()
	for {
		conn, err := n.l.Accept()
		if err != nil {
			if e, ok := err.(net.Error); ok && e.Timeout() {
				continue
			}
			if !n.IsHalted() && !errors.Is(err, net.ErrClosed) {
				n.log.Errorf("accept failure: %v", err)
			}
			return
		}
		n.log.Debugf("Accepted new connection: %v", conn.RemoteAddr())
		n.onNewConn(conn)
	}

	// NOTREACHED
}

func (n *Node) onNewConn(conn net.Conn) {
	n.closeAllWg.Add(1)
	n.Lock()
	defer n.Unlock()
	e := n.conns.PushFront(conn)
	go n.connWorker(conn, e)
}

func (n *Node) onClosedConn(e *list.Element) {
	n.Lock()
	defer func() {
		n.Unlock()
		n.closeAllWg.Done()
	}()
	n.conns.Remove(e)
}

func (n *Node) connWorker(conn net.Conn, e *list.Element) {
	defer n.onClosedConn(e)

	payload, err := transport.ReadMessage(conn, n.maxMessageSize, n.readTimeout)
	conn.Close()
	instrument.RelayReceived()
	if err != nil {
		n.log.Debugf("Failed to read message from %v: %v", conn.RemoteAddr(), err)
		instrument.RelayDropped(DropRead)
		return
	}
	n.OnMessage(payload)
}

// OnMessage runs the peel, route and forward step for one payload.  The
// sender never learns the Outcome; it exists for logging and tests.
func (n *Node) OnMessage(payload []byte) *Outcome {
	o := &Outcome{TraceID: uuid.NewString()}
	if len(payload) == 0 {
		n.drop(o, DropEmpty, nil)
		return o
	}

	inner, err := n.registry.Decrypt(n.id, payload)
	if err != nil {
		n.drop(o, DropAuthentication, err)
		return o
	}

	o.Target, o.IsTerminal = n.router.Next()
	network := n.network
	if o.IsTerminal {
		network = pki.TransportTCP
	}
	if err = n.forwarder.Send(n.ctx, network, o.Target, inner); err != nil {
		n.drop(o, DropForward, err)
		return o
	}

	if o.IsTerminal {
		instrument.RelayForwarded("chatroom")
	} else {
		instrument.RelayForwarded("relay")
	}
	n.log.Debugf("%s: forwarded %d bytes to %v (terminal: %v)", o.TraceID, len(inner), o.Target, o.IsTerminal)
	return o
}

func (n *Node) drop(o *Outcome, reason string, err error) {
	o.Dropped = reason
	o.Err = err
	instrument.RelayDropped(reason)
	if reason == DropForward {
		n.log.Warningf("%s: failed to forward to %v: %v", o.TraceID, o.Target, err)
		return
	}
	n.log.Debugf("%s: dropped (%s): %v", o.TraceID, reason, err)
}

// New binds the relay id to its listening address and starts serving.
// The registry must hold the relay's own key; keys for other relays are
// never used.
func New(cfg *config.Config, id pki.RelayID, registry *onion.Registry, logBackend *log.Backend) (*Node, error) {
	doc, err := cfg.Document()
	if err != nil {
		return nil, err
	}
	return newNode(cfg, doc, id, registry, logBackend, NewRouter(doc, id, *cfg.Relay.ForwardProbability))
}

func newNode(cfg *config.Config, doc *pki.Document, id pki.RelayID, registry *onion.Registry, logBackend *log.Backend, router nextHop) (*Node, error) {
	if !doc.Contains(id) {
		return nil, fmt.Errorf("relay: %w: %v", pki.ErrUnknownRelay, id)
	}
	if !registry.Has(id) {
		return nil, fmt.Errorf("relay: %w: no key for %v", onion.ErrUnknownRelay, id)
	}
	port, err := id.Port()
	if err != nil {
		return nil, err
	}

	n := &Node{
		log:            logBackend.GetLogger(fmt.Sprintf("relay:%d", port)),
		id:             id,
		registry:       registry,
		router:         router,
		forwarder:      transport.NewForwarder(logBackend.GetLogger("forwarder"), cfg.Debug.ConnectDeadline(), cfg.Debug.WriteDeadline()),
		network:        doc.Transport,
		readTimeout:    cfg.Debug.ReadDeadline(),
		maxMessageSize: cfg.Debug.MaxMessageSize,
		conns:          list.New(),
	}
	n.ctx, n.cancelFn = context.WithCancel(context.Background())

	if n.l, err = transport.Listen(doc.Transport, string(id)); err != nil {
		n.cancelFn()
		return nil, err
	}
	if fp, err := registry.Fingerprint(id); err == nil {
		n.log.Noticef("Relay %v key fingerprint: %v", id, fp)
	}
	n.Go(n.worker)
	return n, nil
}
