// main_test.go - GhostTalk binary tests.
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

package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghosttalk/ghosttalk/chatroom"
	"github.com/ghosttalk/ghosttalk/client"
	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/log"
	"github.com/ghosttalk/ghosttalk/core/onion"
	"github.com/ghosttalk/ghosttalk/relay"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, dir string, pathLength int, p float64) string {
	f := filepath.Join(dir, "ghosttalk.toml")
	body := fmt.Sprintf(`[Network]
Host = "127.0.0.1"
RelayPorts = [ %d, %d, %d ]
ChatPort = %d
PathLength = %d

[Relay]
ForwardProbability = %v

[Keys]
Keyring = "%s"

[Logging]
Disable = true
`, freePort(t), freePort(t), freePort(t), freePort(t), pathLength, p, filepath.Join(dir, "ghosttalk.keyring"))
	require.NoError(t, os.WriteFile(f, []byte(body), 0600))
	return f
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenkeys(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	f := writeConfig(t, dir, 3, 0.7)

	out, err := execute(t, "", "-f", f, "genkeys", "--split")
	require.NoError(err)
	require.Contains(out, "Wrote keyring for 3 relays")

	cfg, err := config.LoadFile(f)
	require.NoError(err)
	doc, err := cfg.Document()
	require.NoError(err)
	kr, err := onion.LoadKeyring(cfg.Keys.Keyring)
	require.NoError(err)
	require.NoError(kr.Require(doc.Relays...))

	port, err := doc.Relays[0].Port()
	require.NoError(err)
	one, err := onion.LoadKeyring(fmt.Sprintf("%s.%d", cfg.Keys.Keyring, port))
	require.NoError(err)
	require.NoError(one.Require(doc.Relays[0]))
	require.Error(one.Require(doc.Relays[1]))

	// Existing keyrings are only replaced on request.
	_, err = execute(t, "", "-f", f, "genkeys")
	require.Error(err)
	_, err = execute(t, "", "-f", f, "genkeys", "--force")
	require.NoError(err)
}

func TestInvalidMode(t *testing.T) {
	require := require.New(t)

	_, err := execute(t, "", "mode", "relay")
	require.ErrorContains(err, "invalid mode")

	out, err := execute(t, "bogus\n", "mode")
	require.ErrorContains(err, "invalid mode")
	require.Contains(out, "Mode? (node/chat/server): ")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "", "-f", filepath.Join(t.TempDir(), "nope.toml"), "server")
	require.ErrorContains(t, err, "failed to load config file")
}

func TestPromptPort(t *testing.T) {
	require := require.New(t)

	var out bytes.Buffer
	port, err := promptPort(strings.NewReader("5002\n"), &out, []int{5001, 5002})
	require.NoError(err)
	require.Equal(5002, port)
	require.Equal("Enter port [5001 5002]: ", out.String())

	_, err = promptPort(strings.NewReader("five\n"), &out, nil)
	require.Error(err)
}

func TestConsole(t *testing.T) {
	require := require.New(t)

	var out bytes.Buffer
	c := newConsole(&out)
	c.onMessage([]byte("alice: hi there"))
	require.Contains(out.String(), "alice")
	require.Contains(out.String(), ": hi there")
	require.True(strings.HasSuffix(out.String(), "\n> "))

	n, err := chooseNick("")
	require.NoError(err)
	require.Len(n, client.NicknameLength)
	n, err = chooseNick("Bob")
	require.NoError(err)
	require.Equal("bob", n)
}

func TestRunChat(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	f := writeConfig(t, dir, 1, 0)
	_, err := execute(t, "", "-f", f, "genkeys")
	require.NoError(err)

	cfg, err := config.LoadFile(f)
	require.NoError(err)
	doc, err := cfg.Document()
	require.NoError(err)
	kr, err := onion.LoadKeyring(cfg.Keys.Keyring)
	require.NoError(err)
	reg, err := kr.Registry()
	require.NoError(err)
	backend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	room, err := chatroom.New(cfg, backend)
	require.NoError(err)
	defer room.Halt()
	for _, id := range doc.Relays {
		n, err := relay.New(cfg, id, reg, backend)
		require.NoError(err)
		defer n.Halt()
	}

	got := make(chan string, 1)
	l, err := client.Dial(context.Background(), cfg, backend, func(msg []byte) {
		got <- string(msg)
	})
	require.NoError(err)
	defer l.Halt()
	require.Eventually(func() bool { return room.NumSessions() == 1 }, 5*time.Second, 10*time.Millisecond)

	var out bytes.Buffer
	require.NoError(runChat(context.Background(), cfg, "carol", strings.NewReader("\n   \nhello\n"), &out))
	require.Contains(out.String(), "[You are carol]")

	select {
	case m := <-got:
		require.Equal("carol: hello", m)
	case <-time.After(10 * time.Second):
		t.Fatal("message never delivered")
	}
}
