// session.go - Chatroom client session.
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

package chatroom

import (
	"container/list"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/core/transport"
	"github.com/ghosttalk/ghosttalk/internal/instrument"
)

// Session drop reasons, also used as metric labels.
const (
	dropQueueFull   = "queue_full"
	dropWrite       = "write"
	dropRateLimited = "rate_limited"
)

var sessionID uint64

type session struct {
	s   *Server
	log *logging.Logger

	id   uint64
	conn net.Conn
	e    *list.Element

	limiter *rate.Limiter

	sendCh    chan []byte
	haltCh    chan struct{}
	writerCh  chan struct{}
	closeOnce sync.Once
}

// close tears the session down.  It is safe to call from any goroutine and
// more than once.
func (c *session) close() {
	c.closeOnce.Do(func() {
		close(c.haltCh)
		c.conn.Close()
	})
}

// enqueue hands msg to the session's writer without blocking.  A session
// that cannot keep up is disconnected.
func (c *session) enqueue(msg []byte) {
	select {
	case <-c.haltCh:
	case c.sendCh <- msg:
	default:
		c.log.Debugf("Outbound queue full, disconnecting.")
		instrument.ChatroomDropped(dropQueueFull)
		c.close()
	}
}

func (c *session) readWorker() {
	defer func() {
		c.log.Debugf("Closing.")
		c.close()
		<-c.writerCh
		c.s.onClosedSession(c) // Remove from the session list.
	}()

	buf := make([]byte, c.s.maxMessageSize)
	for {
		n, err := transport.ReadOnce(c.conn, buf, c.s.idleTimeout)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrPeerClosed):
				c.log.Debugf("Peer closed the connection.")
			case isClosed(err):
			default:
				c.log.Debugf("Read failed: %v", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			instrument.ChatroomDropped(dropRateLimited)
			continue
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		c.s.broadcast(c, msg)
	}
}

func (c *session) writeWorker() {
	defer close(c.writerCh)
	for {
		select {
		case <-c.haltCh:
			return
		case msg := <-c.sendCh:
			if err := transport.WriteMessage(c.conn, msg, c.s.writeTimeout); err != nil {
				if !isClosed(err) {
					c.log.Debugf("Write failed, disconnecting: %v", err)
					instrument.ChatroomDropped(dropWrite)
				}
				c.close()
				return
			}
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func newSession(s *Server, conn net.Conn) *session {
	c := &session{
		s:        s,
		id:       atomic.AddUint64(&sessionID, 1), // Diagnostic only, wrapping is fine.
		conn:     conn,
		sendCh:   make(chan []byte, s.queueLength),
		haltCh:   make(chan struct{}),
		writerCh: make(chan struct{}),
	}
	c.log = s.logBackend.GetLogger(fmt.Sprintf("chatroom:%d", c.id))
	if s.messagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.messagesPerSecond), s.burst)
	}
	return c
}
