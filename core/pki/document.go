// document.go - Fixed relay network document.
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

// Package pki describes the relay network every participant knows about.
// There is no directory authority: the document is built from configuration
// and never changes while the process runs.
package pki

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// TransportTCP is the default transport.
	TransportTCP = "tcp"

	// TransportQUIC carries relay hops over QUIC streams.
	TransportQUIC = "quic"
)

var (
	// ErrUnknownRelay is the error returned when a relay is not part of the
	// document.
	ErrUnknownRelay = errors.New("pki: unknown relay")

	// ErrNoRelays is the error returned by Validate for an empty relay set.
	ErrNoRelays = errors.New("pki: no relays")
)

// RelayID identifies a relay.  It is the relay's dialable "host:port"
// address.
type RelayID string

// String returns the RelayID as a string.
func (id RelayID) String() string {
	return string(id)
}

// Port returns the port component of the RelayID.
func (id RelayID) Port() (int, error) {
	_, p, err := net.SplitHostPort(string(id))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(p)
}

// NewRelayID builds the RelayID for a relay listening on host:port.
func NewRelayID(host string, port int) RelayID {
	return RelayID(net.JoinHostPort(host, strconv.Itoa(port)))
}

// Document is the fixed, globally known relay network.
type Document struct {
	// Relays is the ordered relay set.
	Relays []RelayID

	// Chatroom is the "host:port" address of the terminal broadcast service.
	Chatroom string

	// Transport is the transport used for relay hops.
	Transport string
}

// New builds a Document for relays on host at ports, with the chatroom at
// chatPort.
func New(host string, ports []int, chatPort int, transport string) *Document {
	d := &Document{
		Relays:    make([]RelayID, 0, len(ports)),
		Chatroom:  net.JoinHostPort(host, strconv.Itoa(chatPort)),
		Transport: transport,
	}
	for _, p := range ports {
		d.Relays = append(d.Relays, NewRelayID(host, p))
	}
	return d
}

// Validate checks the document for internal consistency.
func (d *Document) Validate() error {
	if len(d.Relays) == 0 {
		return ErrNoRelays
	}
	seen := make(map[RelayID]bool)
	for _, id := range d.Relays {
		if _, _, err := net.SplitHostPort(string(id)); err != nil {
			return fmt.Errorf("pki: relay '%v' is invalid: %v", id, err)
		}
		if seen[id] {
			return fmt.Errorf("pki: relay '%v' listed multiple times", id)
		}
		seen[id] = true
	}
	if _, _, err := net.SplitHostPort(d.Chatroom); err != nil {
		return fmt.Errorf("pki: chatroom '%v' is invalid: %v", d.Chatroom, err)
	}
	if seen[RelayID(d.Chatroom)] {
		return fmt.Errorf("pki: chatroom '%v' collides with a relay", d.Chatroom)
	}
	switch d.Transport {
	case TransportTCP, TransportQUIC:
	default:
		return fmt.Errorf("pki: transport '%v' is not supported", d.Transport)
	}
	return nil
}

// Contains returns true iff id is one of the document's relays.
func (d *Document) Contains(id RelayID) bool {
	for _, v := range d.Relays {
		if v == id {
			return true
		}
	}
	return false
}

// Others returns every relay except self, in document order.
func (d *Document) Others(self RelayID) []RelayID {
	others := make([]RelayID, 0, len(d.Relays))
	for _, v := range d.Relays {
		if v != self {
			others = append(others, v)
		}
	}
	return others
}

// RelayByPort returns the relay listening on port.
func (d *Document) RelayByPort(port int) (RelayID, error) {
	for _, v := range d.Relays {
		if p, err := v.Port(); err == nil && p == port {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: no relay on port %d", ErrUnknownRelay, port)
}

func (d *Document) String() string {
	ids := make([]string, 0, len(d.Relays))
	for _, v := range d.Relays {
		ids = append(ids, string(v))
	}
	return fmt.Sprintf("relays=[%s] chatroom=%s transport=%s", strings.Join(ids, ", "), d.Chatroom, d.Transport)
}
