// sender.go - Onion message sender.
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

// Package client implements the chat clients: the Sender, which wraps a
// message in one layer per relay and hands it to the first hop, and the
// Listener, which holds a session open on the chatroom.
package client

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/log"
	"github.com/ghosttalk/ghosttalk/core/onion"
	"github.com/ghosttalk/ghosttalk/core/path"
	"github.com/ghosttalk/ghosttalk/core/transport"
)

var (
	// ErrEmptyMessage is returned when asked to send nothing.
	ErrEmptyMessage = errors.New("client: empty message")

	// ErrMessageTooLarge is returned when the layered message would not fit
	// in a single read at the first hop.
	ErrMessageTooLarge = errors.New("client: message too large")
)

// Sender sends messages through a fresh random path each time.  There is
// no acknowledgment: a nil error only means the first hop accepted the
// bytes.
type Sender struct {
	log *logging.Logger

	factory   *path.Factory
	registry  *onion.Registry
	forwarder *transport.Forwarder
	network   string

	maxMessageSize int
}

// MaxPlaintextSize returns the largest plaintext that still fits once
// layered.
func (s *Sender) MaxPlaintextSize() int {
	return s.maxMessageSize - onion.SealedSize(0, s.factory.Length())
}

// Compose picks a path and layers plaintext for it, innermost layer for the
// last hop.
func (s *Sender) Compose(plaintext []byte) (path.Path, []byte, error) {
	if len(plaintext) == 0 {
		return nil, nil, ErrEmptyMessage
	}
	if len(plaintext) > s.MaxPlaintextSize() {
		return nil, nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(plaintext), s.MaxPlaintextSize())
	}

	p, err := s.factory.Compose()
	if err != nil {
		return nil, nil, err
	}
	layered, err := s.registry.Wrap(p, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return p, layered, nil
}

// SendViaOnion layers plaintext for a random path and sends it to the
// path's first hop.
func (s *Sender) SendViaOnion(ctx context.Context, plaintext []byte) error {
	p, layered, err := s.Compose(plaintext)
	if err != nil {
		return err
	}
	return s.Forward(ctx, p, layered)
}

// Forward hands a message layered for p to p's first hop.
func (s *Sender) Forward(ctx context.Context, p path.Path, layered []byte) error {
	s.log.Debugf("Sending %d bytes via %v", len(layered), p)
	return s.forwarder.Send(ctx, s.network, string(p.First()), layered)
}

// NewSender returns a Sender for the configured network.  The registry must
// hold a key for every relay.
func NewSender(cfg *config.Config, registry *onion.Registry, logBackend *log.Backend) (*Sender, error) {
	doc, err := cfg.Document()
	if err != nil {
		return nil, err
	}
	for _, id := range doc.Relays {
		if !registry.Has(id) {
			return nil, fmt.Errorf("client: %w: no key for %v", onion.ErrUnknownRelay, id)
		}
	}

	s := &Sender{
		log:            logBackend.GetLogger("sender"),
		factory:        path.NewFactory(doc, cfg.Network.PathLength),
		registry:       registry,
		forwarder:      transport.NewForwarder(logBackend.GetLogger("forwarder"), cfg.Debug.ConnectDeadline(), cfg.Debug.WriteDeadline()),
		network:        doc.Transport,
		maxMessageSize: cfg.Debug.MaxMessageSize,
	}
	if s.MaxPlaintextSize() <= 0 {
		return nil, fmt.Errorf("client: MaxMessageSize %d cannot hold %d layers", s.maxMessageSize, s.factory.Length())
	}
	return s, nil
}
