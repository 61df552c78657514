// chat.go - Console chat client.
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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"

	"github.com/ghosttalk/ghosttalk/client"
	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/log"
	"github.com/ghosttalk/ghosttalk/core/onion"
)

var (
	nickStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	systemStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

// console serializes output from the read loop and the prompt.
type console struct {
	sync.Mutex

	w io.Writer
}

func (c *console) printf(format string, args ...interface{}) {
	c.Lock()
	defer c.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) system(s string) {
	c.printf("%s\n", systemStyle.Render(s))
}

func (c *console) fail(err error) {
	c.printf("%s\n", errorStyle.Render(err.Error()))
}

// onMessage renders an inbound chat line, highlighting the nickname.
func (c *console) onMessage(msg []byte) {
	line := string(msg)
	if nick, text, ok := strings.Cut(line, ": "); ok && nick != "" && !strings.ContainsAny(nick, " \n") {
		line = nickStyle.Render(nick) + ": " + text
	}
	c.printf("\n%s\n> ", line)
}

func newConsole(w io.Writer) *console {
	if f, ok := w.(*os.File); ok {
		w = colorprofile.NewWriter(f, os.Environ())
	}
	return &console{w: w}
}

func chooseNick(nick string) (string, error) {
	if nick == "" {
		return client.RandomNickname(), nil
	}
	return client.NormalizeNickname(nick)
}

func runChat(ctx context.Context, cfg *config.Config, nick string, in io.Reader, out io.Writer) error {
	nick, err := chooseNick(nick)
	if err != nil {
		return err
	}

	// The console belongs to the user, logs only go to a file.
	logBackend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable || cfg.Logging.File == "")
	if err != nil {
		return err
	}

	kr, err := onion.LoadKeyring(cfg.Keys.Keyring)
	if err != nil {
		return err
	}
	registry, err := kr.Registry()
	if err != nil {
		return err
	}
	sender, err := client.NewSender(cfg, registry, logBackend)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	con := newConsole(out)
	listener, err := client.Dial(ctx, cfg, logBackend, con.onMessage)
	if err != nil {
		return fmt.Errorf("failed to join the chatroom: %w", err)
	}
	defer listener.Halt()

	con.system(fmt.Sprintf("[You are %s]", nick))
	con.system("Type your messages:")

	lineCh := make(chan string)
	go func() {
		defer close(lineCh)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lineCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-listener.ClosedCh():
			return errors.New("chatroom closed the session")
		case line, ok := <-lineCh:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := sender.SendViaOnion(ctx, []byte(client.FormatMessage(nick, line))); err != nil {
				con.fail(err)
			}
		}
	}
}
