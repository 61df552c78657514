// server_test.go - Process host tests.
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

package server

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghosttalk/ghosttalk/chatroom"
	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/onion"
	"github.com/ghosttalk/ghosttalk/core/pki"
	"github.com/ghosttalk/ghosttalk/relay"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newTestConfig(t *testing.T, dir string) *config.Config {
	body := fmt.Sprintf(`[Network]
Host = "127.0.0.1"
RelayPorts = [ %d, %d, %d ]
ChatPort = %d

[Keys]
Keyring = "%s"

[Logging]
File = "%s"
Level = "DEBUG"

[Metrics]
Address = "127.0.0.1:0"
`, freePort(t), freePort(t), freePort(t), freePort(t),
		filepath.Join(dir, "ghosttalk.keyring"), filepath.Join(dir, "ghosttalk.log"))
	cfg, err := config.Load([]byte(body))
	require.NoError(t, err)
	return cfg
}

func TestChatroom(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	s, err := NewChatroom(cfg)
	require.NoError(err)
	require.IsType(&chatroom.Server{}, s.Service())
	require.Equal(pki.RelayID(""), s.RelayID())

	s.RotateLog()
	s.Shutdown()
	s.Wait()
	s.Shutdown()

	b, err := os.ReadFile(filepath.Join(dir, "ghosttalk.log"))
	require.NoError(err)
	require.Contains(string(b), "Shutdown complete.")
}

func TestRotateFailure(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	logDir := filepath.Join(dir, "logs")
	require.NoError(os.Mkdir(logDir, 0700))
	cfg.Logging.File = filepath.Join(logDir, "ghosttalk.log")

	s, err := NewChatroom(cfg)
	require.NoError(err)

	// A log file that cannot be reopened takes the server down.
	require.NoError(os.RemoveAll(logDir))
	s.RotateLog()
	s.Wait()

	// Late SIGHUPs after shutdown are ignored.
	require.NotPanics(func() { s.RotateLog() })
}

func TestRelay(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	doc, err := cfg.Document()
	require.NoError(err)

	port, err := doc.Relays[1].Port()
	require.NoError(err)

	// No keyring yet.
	_, err = NewRelay(cfg, port)
	require.Error(err)

	// A keyring holding only another relay's key.
	kr, err := onion.GenerateKeyring(nil, doc.Relays)
	require.NoError(err)
	other, err := kr.Subset(doc.Relays[0])
	require.NoError(err)
	require.NoError(onion.StoreKeyring(cfg.Keys.Keyring, other, false))
	_, err = NewRelay(cfg, port)
	require.ErrorIs(err, ErrNoKey)

	require.NoError(onion.StoreKeyring(cfg.Keys.Keyring, kr, true))
	s, err := NewRelay(cfg, port)
	require.NoError(err)
	require.IsType(&relay.Node{}, s.Service())
	require.Equal(doc.Relays[1], s.RelayID())
	s.Shutdown()
	s.Wait()

	_, err = NewRelay(cfg, 1)
	require.ErrorIs(err, pki.ErrUnknownRelay)
}
