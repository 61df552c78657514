// document_test.go - Fixed relay network document tests.
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

package pki

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	require := require.New(t)

	d := New("127.0.0.1", []int{5001, 5002, 5003}, 6000, TransportTCP)
	require.NoError(d.Validate())
	require.Equal([]RelayID{"127.0.0.1:5001", "127.0.0.1:5002", "127.0.0.1:5003"}, d.Relays)
	require.Equal("127.0.0.1:6000", d.Chatroom)

	require.True(d.Contains("127.0.0.1:5002"))
	require.False(d.Contains("127.0.0.1:6000"))
	require.Equal([]RelayID{"127.0.0.1:5001", "127.0.0.1:5003"}, d.Others("127.0.0.1:5002"))

	id, err := d.RelayByPort(5003)
	require.NoError(err)
	require.Equal(RelayID("127.0.0.1:5003"), id)

	_, err = d.RelayByPort(7000)
	require.True(errors.Is(err, ErrUnknownRelay))
}

func TestDocumentValidate(t *testing.T) {
	require := require.New(t)

	require.ErrorIs((&Document{Chatroom: "127.0.0.1:6000", Transport: TransportTCP}).Validate(), ErrNoRelays)

	dup := New("127.0.0.1", []int{5001, 5001}, 6000, TransportTCP)
	require.Error(dup.Validate())

	collide := New("127.0.0.1", []int{5001, 6000}, 6000, TransportTCP)
	require.Error(collide.Validate())

	badTransport := New("127.0.0.1", []int{5001}, 6000, "udp")
	require.Error(badTransport.Validate())

	ipv6 := New("::1", []int{5001, 5002}, 6000, TransportQUIC)
	require.NoError(ipv6.Validate())
	require.Equal(RelayID("[::1]:5001"), ipv6.Relays[0])
}
