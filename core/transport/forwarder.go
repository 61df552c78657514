// forwarder.go - One-shot payload forwarder.
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
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/ghosttalk/ghosttalk/internal/instrument"
)

// Forwarder opens a short-lived connection per payload: connect, write
// everything, close.  It never retries; whether to try again is the
// caller's decision.  It is stateless and safe for concurrent use.
type Forwarder struct {
	log *logging.Logger

	connectTimeout time.Duration
	writeTimeout   time.Duration
}

// Send delivers payload to address over network.  Failures are returned as
// *Error, matching ErrConnect or ErrWrite.
func (f *Forwarder) Send(ctx context.Context, network, address string, payload []byte) error {
	conn, err := Dial(ctx, network, address, f.connectTimeout)
	if err != nil {
		f.log.Debugf("Failed to connect to %v: %v", address, err)
		instrument.ForwardFailure(OpConnect)
		return err
	}
	instrument.Outgoing()

	if err = WriteMessage(conn, payload, f.writeTimeout); err != nil {
		conn.Close()
		f.log.Debugf("Failed to write %d bytes to %v: %v", len(payload), address, err)
		instrument.ForwardFailure(OpWrite)
		return err
	}

	if qc, ok := conn.(*quicConn); ok {
		qc.closeWrite()
	}
	conn.Close()
	f.log.Debugf("Sent %d bytes to %v", len(payload), address)
	return nil
}

// NewForwarder returns a Forwarder using the given timeouts, either of
// which may be zero for none.
func NewForwarder(log *logging.Logger, connectTimeout, writeTimeout time.Duration) *Forwarder {
	return &Forwarder{
		log:            log,
		connectTimeout: connectTimeout,
		writeTimeout:   writeTimeout,
	}
}
