// server.go - GhostTalk relay and chatroom process host.
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

// Package server hosts a single relay or the chatroom for the lifetime of
// a process, together with its logging and metrics.
package server

import (
	"errors"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/chatroom"
	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/log"
	"github.com/ghosttalk/ghosttalk/core/onion"
	"github.com/ghosttalk/ghosttalk/core/pki"
	"github.com/ghosttalk/ghosttalk/internal/instrument"
	"github.com/ghosttalk/ghosttalk/internal/profiling"
	"github.com/ghosttalk/ghosttalk/relay"
)

// ErrNoKey is returned when the keyring lacks the relay's key.
var ErrNoKey = errors.New("server: keyring has no key for this relay")

type halter interface {
	Halt()
}

// Server is a running relay or chatroom.
type Server struct {
	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	metrics *instrument.Server
	service halter

	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

// LogBackend returns the process log backend.
func (s *Server) LogBackend() *log.Backend {
	return s.logBackend
}

// Service returns the hosted *relay.Node or *chatroom.Server.
func (s *Server) Service() interface{} {
	return s.service
}

func (s *Server) initLogging() error {
	var err error
	s.logBackend, err = log.New(s.cfg.Logging.File, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger("ghosttalk")
	}
	return err
}

func (s *Server) initMetrics() error {
	if s.cfg.Metrics.Address == "" {
		return nil
	}
	var err error
	s.metrics, err = instrument.Start(s.cfg.Metrics.Address, s.logBackend.GetGoLogger("metrics", "WARNING"))
	if err != nil {
		return fmt.Errorf("server: failed to start metrics endpoint: %v", err)
	}
	s.log.Noticef("Serving metrics on %v", s.metrics.Addr())
	return nil
}

// Shutdown cleanly shuts down the service.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

// Wait waits till the service is terminated for any reason.
func (s *Server) Wait() {
	<-s.haltedCh
}

func (s *Server) halt() {
	s.log.Noticef("Starting graceful shutdown.")

	if s.service != nil {
		s.service.Halt()
		s.service = nil
	}
	if s.metrics != nil {
		s.metrics.Close()
		s.metrics = nil
	}

	s.log.Noticef("Shutdown complete.")
	close(s.haltedCh)
}

// RotateLog rotates the log file if logging to a file is enabled.
func (s *Server) RotateLog() {
	if err := s.logBackend.Rotate(); err != nil {
		select {
		case s.fatalErrCh <- fmt.Errorf("failed to rotate log file, shutting down server"):
		case <-s.haltedCh:
		}
	}
}

func newServer(cfg *config.Config, role string) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		fatalErrCh: make(chan error),
		haltedCh:   make(chan interface{}),
	}
	if err := s.initLogging(); err != nil {
		return nil, err
	}

	s.log.Noticef("GhostTalk %s", role)
	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Debug logging is enabled.")
	}
	if err := profiling.Start(s.log, role); err != nil {
		s.log.Warningf("Failed to start profiling: %v", err)
	}
	return s, nil
}

func (s *Server) start(fn func() (halter, error)) error {
	// Past this point, failures need to call s.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			s.Shutdown()
		}
	}()

	// Start the fatal error watcher.
	go func() {
		select {
		case err := <-s.fatalErrCh:
			s.log.Warningf("Shutting down due to error: %v", err)
			s.Shutdown()
		case <-s.haltedCh:
		}
	}()

	if err := s.initMetrics(); err != nil {
		return err
	}
	svc, err := fn()
	if err != nil {
		s.log.Errorf("Failed to start: %v", err)
		return err
	}
	s.service = svc

	isOk = true
	return nil
}

// NewRelay starts the relay listening on port, using its key from the
// configured keyring.
func NewRelay(cfg *config.Config, port int) (*Server, error) {
	doc, err := cfg.Document()
	if err != nil {
		return nil, err
	}
	id, err := doc.RelayByPort(port)
	if err != nil {
		return nil, err
	}

	kr, err := onion.LoadKeyring(cfg.Keys.Keyring)
	if err != nil {
		return nil, err
	}
	own, err := kr.Subset(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoKey, err)
	}
	registry, err := own.Registry()
	if err != nil {
		return nil, err
	}

	s, err := newServer(cfg, fmt.Sprintf("relay %v", id))
	if err != nil {
		return nil, err
	}
	if err = s.start(func() (halter, error) {
		return relay.New(cfg, id, registry, s.logBackend)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// NewChatroom starts the chatroom.
func NewChatroom(cfg *config.Config) (*Server, error) {
	s, err := newServer(cfg, "chatroom")
	if err != nil {
		return nil, err
	}
	if err = s.start(func() (halter, error) {
		return chatroom.New(cfg, s.logBackend)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// RelayID returns the id of the hosted relay, or the empty id when hosting
// the chatroom.
func (s *Server) RelayID() pki.RelayID {
	if n, ok := s.service.(*relay.Node); ok {
		return n.ID()
	}
	return ""
}
