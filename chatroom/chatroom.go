// chatroom.go - Terminal broadcast service.
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

// Package chatroom implements the terminal broadcast service: every message
// read from one connected session is written to every other session.
package chatroom

import (
	"container/list"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/log"
	"github.com/ghosttalk/ghosttalk/core/pki"
	"github.com/ghosttalk/ghosttalk/core/transport"
	"github.com/ghosttalk/ghosttalk/core/worker"
	"github.com/ghosttalk/ghosttalk/internal/instrument"
)

// Server is the chatroom.
type Server struct {
	sync.Mutex
	worker.Worker

	logBackend *log.Backend
	log        *logging.Logger

	l        net.Listener
	sessions *list.List

	idleTimeout       time.Duration
	writeTimeout      time.Duration
	maxMessageSize    int
	queueLength       int
	messagesPerSecond float64
	burst             int

	// broadcasts counts fan-outs, including ones with no recipients.
	broadcasts atomic.Uint64

	closeAllWg sync.WaitGroup
}

// Addr returns the address the chatroom is listening on.
func (s *Server) Addr() net.Addr {
	return s.l.Addr()
}

// NumSessions returns the number of registered sessions.
func (s *Server) NumSessions() int {
	s.Lock()
	defer s.Unlock()
	return s.sessions.Len()
}

// Halt stops accepting, disconnects every session and waits for their
// goroutines to return.
func (s *Server) Halt() {
	s.l.Close()
	s.Worker.Halt()

	s.Lock()
	for e := s.sessions.Front(); e != nil; e = e.Next() {
		e.Value.(*session).close()
	}
	s.Unlock()
	s.closeAllWg.Wait()
}

func (s *Server) worker() {
	addr := s.l.Addr()
	s.log.Noticef("Listening on: %v", addr)
	defer func() {
		s.log.Noticef("Stopping listening on: %v", addr)
		s.l.Close() // Usually redundant, but harmless.
	}()
	for {
		conn, err := s.l.Accept()
		if err != nil {
			if e, ok := err.(net.Error); ok && e.Timeout() {
				continue
			}
			if !s.IsHalted() && !errors.Is(err, net.ErrClosed) {
				s.log.Errorf("accept failure: %v", err)
			}
			return
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
		}
		s.log.Debugf("Accepted new connection: %v", conn.RemoteAddr())
		s.onNewConn(conn)
	}

	// NOTREACHED
}

func (s *Server) onNewConn(conn net.Conn) {
	c := newSession(s, conn)

	s.closeAllWg.Add(1)
	s.Lock()
	defer func() {
		s.Unlock()
		go c.writeWorker()
		go c.readWorker()
	}()
	c.e = s.sessions.PushFront(c)
	instrument.ChatroomSessions(s.sessions.Len())
}

func (s *Server) onClosedSession(c *session) {
	s.Lock()
	defer func() {
		s.Unlock()
		s.closeAllWg.Done()
	}()
	s.sessions.Remove(c.e)
	instrument.ChatroomSessions(s.sessions.Len())
}

// broadcast queues msg on every registered session except the sender.
func (s *Server) broadcast(from *session, msg []byte) {
	s.Lock()
	targets := make([]*session, 0, s.sessions.Len())
	for e := s.sessions.Front(); e != nil; e = e.Next() {
		if c := e.Value.(*session); c != from {
			targets = append(targets, c)
		}
	}
	s.Unlock()

	s.broadcasts.Add(1)
	instrument.ChatroomBroadcast()
	from.log.Debugf("Broadcasting %d bytes to %d sessions", len(msg), len(targets))
	for _, c := range targets {
		c.enqueue(msg)
	}
}

// New binds the chatroom to the Network section's chat port and starts
// serving.  The chatroom always listens on TCP.
func New(cfg *config.Config, logBackend *log.Backend) (*Server, error) {
	doc, err := cfg.Document()
	if err != nil {
		return nil, err
	}

	s := &Server{
		logBackend:        logBackend,
		log:               logBackend.GetLogger("chatroom"),
		sessions:          list.New(),
		idleTimeout:       time.Duration(cfg.Chatroom.IdleTimeout) * time.Millisecond,
		writeTimeout:      cfg.Debug.WriteDeadline(),
		maxMessageSize:    cfg.Debug.MaxMessageSize,
		queueLength:       cfg.Chatroom.QueueLength,
		messagesPerSecond: cfg.Chatroom.MessagesPerSecond,
		burst:             cfg.Chatroom.Burst,
	}
	if s.l, err = transport.Listen(pki.TransportTCP, doc.Chatroom); err != nil {
		return nil, err
	}
	s.Go(s.worker)
	return s, nil
}
