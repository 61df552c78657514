// prometheus_test.go - Prometheus instrumentation tests.
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

//go:build !noprometheus

package instrument

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	require := require.New(t)

	before := testutil.ToFloat64(relayDropped.WithLabelValues("authentication"))
	RelayDropped("authentication")
	RelayDropped("authentication")
	require.Equal(before+2, testutil.ToFloat64(relayDropped.WithLabelValues("authentication")))

	ChatroomSessions(3)
	require.Equal(float64(3), testutil.ToFloat64(chatroomSessions))
}

func TestStart(t *testing.T) {
	require := require.New(t)

	RelayForwarded("relay")

	srv, err := Start("127.0.0.1:0", nil)
	require.NoError(err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.True(strings.Contains(string(b), "ghosttalk_relay_forwarded_total"))

	_, err = Start("not an address", nil)
	require.Error(err)
}
