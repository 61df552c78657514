// prometheus_dummy.go - No-op instrumentation.
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

//go:build noprometheus

package instrument

import (
	"errors"
	goLog "log"
)

// Start fails, metrics are compiled out.
func Start(address string, errorLog *goLog.Logger) (*Server, error) {
	return nil, errors.New("instrument: built with noprometheus")
}

// RelayReceived does nothing.
func RelayReceived() {}

// RelayForwarded does nothing.
func RelayForwarded(target string) {}

// RelayDropped does nothing.
func RelayDropped(reason string) {}

// Outgoing does nothing.
func Outgoing() {}

// ForwardFailure does nothing.
func ForwardFailure(op string) {}

// ChatroomSessions does nothing.
func ChatroomSessions(n int) {}

// ChatroomBroadcast does nothing.
func ChatroomBroadcast() {}

// ChatroomDropped does nothing.
func ChatroomDropped(reason string) {}
