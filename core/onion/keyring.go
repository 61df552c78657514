// keyring.go - Pre-shared relay key file.
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

package onion

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/ghosttalk/ghosttalk/core/pki"
	"github.com/ghosttalk/ghosttalk/core/utils"
)

// KeyringVersion is the current keyring file format version.
const KeyringVersion = 0

const keyringFileMode = 0600

// ErrMissingKey is the error returned when a keyring lacks a key a
// participant needs.
var ErrMissingKey = errors.New("onion: keyring is missing a key")

// Keyring is the on-disk set of relay keys, distributed out of band.  A
// sender needs every relay's key, a relay operator only needs its own
// (see Subset).
type Keyring struct {
	Version int
	Keys    map[string][]byte
}

// GenerateKeyring creates a fresh key for every relay in ids.
func GenerateKeyring(r io.Reader, ids []pki.RelayID) (*Keyring, error) {
	kr := &Keyring{
		Version: KeyringVersion,
		Keys:    make(map[string][]byte, len(ids)),
	}
	for _, id := range ids {
		k, err := GenerateKey(r)
		if err != nil {
			return nil, err
		}
		kr.Keys[string(id)] = append([]byte{}, k[:]...)
		k.Reset()
	}
	return kr, nil
}

func (kr *Keyring) validate() error {
	if kr.Version != KeyringVersion {
		return fmt.Errorf("onion: unsupported keyring version %d", kr.Version)
	}
	for id, b := range kr.Keys {
		if len(b) != KeySize {
			return fmt.Errorf("onion: keyring entry '%v' has invalid length %d", id, len(b))
		}
	}
	return nil
}

// Require checks that the keyring holds a key for every id.
func (kr *Keyring) Require(ids ...pki.RelayID) error {
	for _, id := range ids {
		if _, ok := kr.Keys[string(id)]; !ok {
			return fmt.Errorf("%w: %v", ErrMissingKey, id)
		}
	}
	return nil
}

// Subset returns a keyring holding only the keys for ids.
func (kr *Keyring) Subset(ids ...pki.RelayID) (*Keyring, error) {
	if err := kr.Require(ids...); err != nil {
		return nil, err
	}
	sub := &Keyring{
		Version: kr.Version,
		Keys:    make(map[string][]byte, len(ids)),
	}
	for _, id := range ids {
		sub.Keys[string(id)] = append([]byte{}, kr.Keys[string(id)]...)
	}
	return sub, nil
}

// Registry builds a cipher Registry from the keyring.
func (kr *Keyring) Registry() (*Registry, error) {
	if err := kr.validate(); err != nil {
		return nil, err
	}
	keys := make(map[pki.RelayID]*Key, len(kr.Keys))
	for id, b := range kr.Keys {
		k, err := KeyFromBytes(b)
		if err != nil {
			return nil, err
		}
		keys[pki.RelayID(id)] = k
	}
	reg := NewRegistry(keys)
	for _, k := range keys {
		k.Reset()
	}
	return reg, nil
}

// keyring strips the Keyring methods so that cbor encodes the fields
// rather than calling back into MarshalBinary.
type keyring Keyring

// MarshalBinary serializes the keyring.
func (kr *Keyring) MarshalBinary() ([]byte, error) {
	return cbor.Marshal((*keyring)(kr))
}

// UnmarshalBinary deserializes and validates a keyring.
func (kr *Keyring) UnmarshalBinary(b []byte) error {
	if err := cbor.Unmarshal(b, (*keyring)(kr)); err != nil {
		return fmt.Errorf("onion: malformed keyring: %v", err)
	}
	return kr.validate()
}

// StoreKeyring writes kr to f, refusing to replace an existing file unless
// overwrite is set.
func StoreKeyring(f string, kr *Keyring, overwrite bool) error {
	b, err := kr.MarshalBinary()
	if err != nil {
		return err
	}
	return utils.WriteFileExclusive(f, b, keyringFileMode, overwrite)
}

// LoadKeyring reads the keyring stored in f.
func LoadKeyring(f string) (*Keyring, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	kr := new(Keyring)
	if err := kr.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return kr, nil
}
