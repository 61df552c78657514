// main.go - GhostTalk binary.
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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghosttalk/ghosttalk/common"
	"github.com/ghosttalk/ghosttalk/config"
	"github.com/ghosttalk/ghosttalk/core/onion"
	"github.com/ghosttalk/ghosttalk/core/utils"
	"github.com/ghosttalk/ghosttalk/server"
)

const (
	defaultConfigFile = "ghosttalk.toml"
	configEnv         = "GHOSTTALK_CONFIG"
)

// Config holds the command line configuration.
type Config struct {
	ConfigFile string
	Port       int
	Nick       string
	Force      bool
	Split      bool
}

// loadConfig loads the config file, falling back to the built in defaults
// when the default file does not exist.
func loadConfig(cfg *Config, explicit bool) (*config.Config, error) {
	if !explicit {
		if ok, err := utils.Exists(cfg.ConfigFile); err == nil && !ok {
			return config.Default()
		}
	}
	c, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}
	return c, nil
}

// newRootCommand creates the root cobra command.
func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "ghosttalk",
		Short: "Onion routed group chat",
		Long: `GhostTalk is a small onion routed group chat.

A sender wraps every message in one encryption layer per relay on a random
path of distinct relays and hands it to the first one.  Each relay removes
exactly one layer and, at random, passes the rest to another relay or to the
chatroom, which broadcasts it to every other connected client.

Every participant shares the relay set from the configuration file and the
relay keys from the keyring created by "ghosttalk genkeys".`,
		Example: `  # Create the keyring for the configured relays
  ghosttalk genkeys

  # Run the three default relays and the chatroom
  ghosttalk node --port 5001
  ghosttalk node --port 5002
  ghosttalk node --port 5003
  ghosttalk server

  # Chat
  ghosttalk chat --nick alice

  # Use another configuration file
  ghosttalk -f /etc/ghosttalk/ghosttalk.toml server
  GHOSTTALK_CONFIG=/etc/ghosttalk/ghosttalk.toml ghosttalk server`,
		SilenceUsage: true,
	}

	def := defaultConfigFile
	if v := os.Getenv(configEnv); v != "" {
		def = v
	}
	cmd.PersistentFlags().StringVarP(&cfg.ConfigFile, "config", "f", def,
		"path to the configuration file (TOML format)")
	explicit := func(c *cobra.Command) bool {
		return c.Flags().Changed("config") || os.Getenv(configEnv) != ""
	}

	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Run a relay",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			gCfg, err := loadConfig(&cfg, explicit(c))
			if err != nil {
				return err
			}
			if !c.Flags().Changed("port") {
				if cfg.Port, err = promptPort(c.InOrStdin(), c.OutOrStdout(), gCfg.Network.RelayPorts); err != nil {
					return err
				}
			}
			return runNode(gCfg, cfg.Port)
		},
	}
	nodeCmd.Flags().IntVarP(&cfg.Port, "port", "p", 0, "relay port, one of the configured RelayPorts")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the chatroom",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			gCfg, err := loadConfig(&cfg, explicit(c))
			if err != nil {
				return err
			}
			return runChatroom(gCfg)
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the chatroom",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			gCfg, err := loadConfig(&cfg, explicit(c))
			if err != nil {
				return err
			}
			return runChat(c.Context(), gCfg, cfg.Nick, c.InOrStdin(), c.OutOrStdout())
		},
	}
	chatCmd.Flags().StringVarP(&cfg.Nick, "nick", "n", "", "nickname, random if omitted")

	genkeysCmd := &cobra.Command{
		Use:   "genkeys",
		Short: "Generate the relay keyring",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			gCfg, err := loadConfig(&cfg, explicit(c))
			if err != nil {
				return err
			}
			return runGenkeys(gCfg, cfg.Force, cfg.Split, c.OutOrStdout())
		},
	}
	genkeysCmd.Flags().BoolVar(&cfg.Force, "force", false, "overwrite existing keyring files")
	genkeysCmd.Flags().BoolVar(&cfg.Split, "split", false, "also write one single-key keyring per relay")

	modeCmd := &cobra.Command{
		Use:       "mode [node|server|chat]",
		Short:     "Select the mode interactively",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"node", "server", "chat"},
		RunE: func(c *cobra.Command, args []string) error {
			in := bufio.NewReader(c.InOrStdin())
			var mode string
			if len(args) == 1 {
				mode = args[0]
			} else {
				fmt.Fprint(c.OutOrStdout(), "Mode? (node/chat/server): ")
				line, err := in.ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				mode = line
			}
			mode = strings.ToLower(strings.TrimSpace(mode))
			switch mode {
			case "node", "server", "chat":
			default:
				return fmt.Errorf("invalid mode '%v'", mode)
			}

			gCfg, err := loadConfig(&cfg, explicit(c))
			if err != nil {
				return err
			}
			switch mode {
			case "node":
				port, err := promptPort(in, c.OutOrStdout(), gCfg.Network.RelayPorts)
				if err != nil {
					return err
				}
				return runNode(gCfg, port)
			case "server":
				return runChatroom(gCfg)
			default:
				return runChat(c.Context(), gCfg, "", in, c.OutOrStdout())
			}
		},
	}

	cmd.AddCommand(nodeCmd, serverCmd, chatCmd, genkeysCmd, modeCmd)
	return cmd
}

func promptPort(r io.Reader, w io.Writer, ports []int) (int, error) {
	fmt.Fprintf(w, "Enter port %v: ", ports)
	var line string
	if br, ok := r.(*bufio.Reader); ok {
		line, _ = br.ReadString('\n')
	} else {
		line, _ = bufio.NewReader(r).ReadString('\n')
	}
	port, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("invalid argument: port '%v'", strings.TrimSpace(line))
	}
	return port, nil
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

// waitForServer halts svr on SIGINT/SIGTERM, rotates its log on SIGHUP and
// blocks until it is gone.
func waitForServer(svr *server.Server) {
	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(haltCh)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)
	defer signal.Stop(rotateCh)

	defer svr.Shutdown()

	// Halt the server gracefully on SIGINT/SIGTERM.
	go func() {
		<-haltCh
		svr.Shutdown()
	}()

	// Rotate server logs upon SIGHUP.
	go func() {
		for range rotateCh {
			svr.RotateLog()
		}
	}()

	// Wait for the server to explode or be terminated.
	svr.Wait()
}

func runNode(cfg *config.Config, port int) error {
	svr, err := server.NewRelay(cfg, port)
	if err != nil {
		return fmt.Errorf("failed to spawn relay: %v", err)
	}
	waitForServer(svr)
	return nil
}

func runChatroom(cfg *config.Config) error {
	svr, err := server.NewChatroom(cfg)
	if err != nil {
		return fmt.Errorf("failed to spawn chatroom: %v", err)
	}
	waitForServer(svr)
	return nil
}

func runGenkeys(cfg *config.Config, force, split bool, w io.Writer) error {
	doc, err := cfg.Document()
	if err != nil {
		return err
	}
	kr, err := onion.GenerateKeyring(nil, doc.Relays)
	if err != nil {
		return err
	}
	if err = onion.StoreKeyring(cfg.Keys.Keyring, kr, force); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote keyring for %d relays to %v\n", len(doc.Relays), cfg.Keys.Keyring)

	reg, err := kr.Registry()
	if err != nil {
		return err
	}
	for _, id := range doc.Relays {
		fp, _ := reg.Fingerprint(id)
		line := fmt.Sprintf("  %v  %v", id, fp)
		if split {
			port, err := id.Port()
			if err != nil {
				return err
			}
			one, err := kr.Subset(id)
			if err != nil {
				return err
			}
			f := fmt.Sprintf("%s.%d", cfg.Keys.Keyring, port)
			if err = onion.StoreKeyring(f, one, force); err != nil {
				return err
			}
			line += "  " + f
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
