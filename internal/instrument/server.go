// server.go - Metrics HTTP server handle.
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

package instrument

import (
	"net"
	"net/http"
)

// Server is a running metrics endpoint.
type Server struct {
	srv  *http.Server
	addr net.Addr
}

// Addr returns the address the endpoint is bound to.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close stops the endpoint.
func (s *Server) Close() error {
	return s.srv.Close()
}
