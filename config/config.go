// config.go - GhostTalk configuration.
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

// Package config provides the GhostTalk configuration shared by relays,
// the chatroom and chat clients.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"golang.org/x/net/idna"

	"github.com/ghosttalk/ghosttalk/core/path"
	"github.com/ghosttalk/ghosttalk/core/pki"
	"github.com/ghosttalk/ghosttalk/core/transport"
)

const (
	defaultHost               = "127.0.0.1"
	defaultChatPort           = 6000
	defaultForwardProbability = 0.7
	defaultLogLevel           = "NOTICE"
	defaultKeyring            = "ghosttalk.keyring"
	defaultReadTimeout        = 30 * 1000 // 30 sec.
	defaultWriteTimeout       = 30 * 1000 // 30 sec.
	defaultConnectTimeout     = 10 * 1000 // 10 sec.
	defaultSessionQueueLength = 64
)

var defaultRelayPorts = []int{5001, 5002, 5003}

// Network describes the fixed set of relays and the chatroom.
type Network struct {
	// Host is the host every relay and the chatroom listen on.
	Host string

	// RelayPorts are the relay listening ports.  Each port is one relay.
	RelayPorts []int

	// ChatPort is the chatroom listening port.
	ChatPort int

	// Transport is the relay-to-relay transport, "tcp" or "quic".  The
	// chatroom is always reached over TCP.
	Transport string

	// PathLength is the number of relays in every onion path.
	PathLength int
}

func (nCfg *Network) applyDefaults() {
	if nCfg.Host == "" {
		nCfg.Host = defaultHost
	}
	if len(nCfg.RelayPorts) == 0 {
		nCfg.RelayPorts = append([]int{}, defaultRelayPorts...)
	}
	if nCfg.ChatPort == 0 {
		nCfg.ChatPort = defaultChatPort
	}
	if nCfg.Transport == "" {
		nCfg.Transport = pki.TransportTCP
	}
	if nCfg.PathLength == 0 {
		nCfg.PathLength = path.DefaultLength
	}
}

func (nCfg *Network) validate() error {
	var err error
	if nCfg.Host, err = idna.Lookup.ToASCII(nCfg.Host); err != nil {
		return fmt.Errorf("config: Network: Failed to normalize Host: %v", err)
	}
	nCfg.Transport = strings.ToLower(nCfg.Transport)
	switch nCfg.Transport {
	case pki.TransportTCP, pki.TransportQUIC:
	default:
		return fmt.Errorf("config: Network: Transport '%v' is invalid", nCfg.Transport)
	}
	if nCfg.PathLength < 1 {
		return fmt.Errorf("config: Network: PathLength %v is invalid", nCfg.PathLength)
	}
	if nCfg.PathLength > len(nCfg.RelayPorts) {
		return fmt.Errorf("config: Network: PathLength %v exceeds the %v configured relays", nCfg.PathLength, len(nCfg.RelayPorts))
	}
	if _, err := nCfg.document(); err != nil {
		return fmt.Errorf("config: Network: %v", err)
	}
	return nil
}

func (nCfg *Network) document() (*pki.Document, error) {
	doc := pki.New(nCfg.Host, nCfg.RelayPorts, nCfg.ChatPort, nCfg.Transport)
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Relay is the relay node configuration.
type Relay struct {
	// ForwardProbability is the probability that a relay forwards a peeled
	// message to another relay rather than to the chatroom.
	ForwardProbability *float64
}

func (rCfg *Relay) applyDefaults() {
	if rCfg.ForwardProbability == nil {
		p := defaultForwardProbability
		rCfg.ForwardProbability = &p
	}
}

func (rCfg *Relay) validate() error {
	if p := *rCfg.ForwardProbability; p < 0 || p > 1 {
		return fmt.Errorf("config: Relay: ForwardProbability %v is not in [0, 1]", p)
	}
	return nil
}

// Chatroom is the terminal broadcast service configuration.
type Chatroom struct {
	// MessagesPerSecond limits how many messages a single session may
	// broadcast per second.  A value <= 0 disables the limit.
	MessagesPerSecond float64

	// Burst is the rate limiter burst size.
	Burst int

	// IdleTimeout disconnects sessions that have been silent for the given
	// number of milliseconds.  A value <= 0 disables it.
	IdleTimeout int

	// QueueLength is the per-session outbound queue length.  A session
	// whose queue is full is disconnected.
	QueueLength int
}

func (cCfg *Chatroom) applyDefaults() {
	if cCfg.MessagesPerSecond > 0 && cCfg.Burst <= 0 {
		cCfg.Burst = 1
	}
	if cCfg.QueueLength <= 0 {
		cCfg.QueueLength = defaultSessionQueueLength
	}
}

// Keys is the key material configuration.
type Keys struct {
	// Keyring is the path to the CBOR keyring holding one key per relay.
	Keyring string
}

func (kCfg *Keys) applyDefaults() {
	if kCfg.Keyring == "" {
		kCfg.Keyring = defaultKeyring
	}
}

// Logging is the GhostTalk logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Metrics is the Prometheus endpoint configuration.
type Metrics struct {
	// Address is the host:port to serve /metrics on.  Empty disables it.
	Address string
}

// Debug is the GhostTalk debug configuration.
type Debug struct {
	// ReadTimeout is the maximum time in milliseconds a relay waits for an
	// inbound message to be fully read.
	ReadTimeout int

	// WriteTimeout is the maximum time in milliseconds a single forward or
	// broadcast write may take.
	WriteTimeout int

	// ConnectTimeout is the maximum time in milliseconds a connection may
	// take to establish.
	ConnectTimeout int

	// MaxMessageSize is the largest message in bytes accepted on the wire.
	MaxMessageSize int
}

func (dCfg *Debug) applyDefaults() {
	if dCfg.ReadTimeout <= 0 {
		dCfg.ReadTimeout = defaultReadTimeout
	}
	if dCfg.WriteTimeout <= 0 {
		dCfg.WriteTimeout = defaultWriteTimeout
	}
	if dCfg.ConnectTimeout <= 0 {
		dCfg.ConnectTimeout = defaultConnectTimeout
	}
	if dCfg.MaxMessageSize <= 0 {
		dCfg.MaxMessageSize = transport.DefaultMaxMessageSize
	}
}

// ReadDeadline returns ReadTimeout as a time.Duration.
func (dCfg *Debug) ReadDeadline() time.Duration {
	return time.Duration(dCfg.ReadTimeout) * time.Millisecond
}

// WriteDeadline returns WriteTimeout as a time.Duration.
func (dCfg *Debug) WriteDeadline() time.Duration {
	return time.Duration(dCfg.WriteTimeout) * time.Millisecond
}

// ConnectDeadline returns ConnectTimeout as a time.Duration.
func (dCfg *Debug) ConnectDeadline() time.Duration {
	return time.Duration(dCfg.ConnectTimeout) * time.Millisecond
}

// overrides are the environment variables that take precedence over the
// config file.
type overrides struct {
	LogLevel       string `env:"GHOSTTALK_LOG_LEVEL"`
	LogFile        string `env:"GHOSTTALK_LOG_FILE"`
	Keyring        string `env:"GHOSTTALK_KEYRING"`
	MetricsAddress string `env:"GHOSTTALK_METRICS_ADDRESS"`
}

func (o *overrides) apply(cfg *Config) {
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFile != "" {
		cfg.Logging.File = o.LogFile
	}
	if o.Keyring != "" {
		cfg.Keys.Keyring = o.Keyring
	}
	if o.MetricsAddress != "" {
		cfg.Metrics.Address = o.MetricsAddress
	}
}

// Config is the top level GhostTalk configuration.
type Config struct {
	Network  *Network
	Relay    *Relay
	Chatroom *Chatroom
	Keys     *Keys
	Logging  *Logging
	Metrics  *Metrics

	Debug *Debug
}

// FixupAndValidate applies defaults and environment overrides to config
// entries and validates the supplied configuration.  Most people should
// call one of the Load variants instead.
func (cfg *Config) FixupAndValidate() error {
	// Every section is optional, an empty file runs the default network.
	if cfg.Network == nil {
		cfg.Network = &Network{}
	}
	if cfg.Relay == nil {
		cfg.Relay = &Relay{}
	}
	if cfg.Chatroom == nil {
		cfg.Chatroom = &Chatroom{}
	}
	if cfg.Keys == nil {
		cfg.Keys = &Keys{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	if cfg.Debug == nil {
		cfg.Debug = &Debug{}
	}

	o, err := env.ParseAs[overrides]()
	if err != nil {
		return fmt.Errorf("config: Failed to parse environment: %v", err)
	}
	o.apply(cfg)

	cfg.Network.applyDefaults()
	cfg.Relay.applyDefaults()
	cfg.Chatroom.applyDefaults()
	cfg.Keys.applyDefaults()
	cfg.Debug.applyDefaults()

	if err := cfg.Network.validate(); err != nil {
		return err
	}
	if err := cfg.Relay.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	return nil
}

// Document returns the relay set and chatroom address described by the
// Network section.
func (cfg *Config) Document() (*pki.Document, error) {
	return cfg.Network.document()
}

// Default returns a validated configuration with every default applied.
func Default() (*Config, error) {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: No nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
