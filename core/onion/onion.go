// onion.go - Onion layer encryption.
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

// Package onion implements the per-relay onion layers.
//
// Each layer is XChaCha20-Poly1305 under the relay's pre-shared key, with a
// random nonce prepended:
//
//	nonce (24 bytes) || ciphertext || tag (16 bytes)
//
// Removing a layer with any key other than the one that sealed it fails
// with ErrAuthentication.
package onion

import (
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/hpqc/hash"
	"github.com/katzenpost/hpqc/rand"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the size of a relay key in bytes.
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the size of the per-layer nonce in bytes.
	NonceSize = chacha20poly1305.NonceSizeX

	// Overhead is the number of bytes each layer adds to the payload.
	Overhead = NonceSize + chacha20poly1305.Overhead
)

var (
	// ErrAuthentication is the error returned when a layer was not sealed
	// under the key used to open it, or has been corrupted in transit.
	ErrAuthentication = errors.New("onion: message authentication failed")

	// ErrUnknownRelay is the error returned when no key is registered for a
	// relay.
	ErrUnknownRelay = errors.New("onion: no key for relay")
)

// Key is a relay's symmetric layer key.
type Key [KeySize]byte

// GenerateKey returns a new random Key.
func GenerateKey(r io.Reader) (*Key, error) {
	if r == nil {
		r = rand.Reader
	}
	k := new(Key)
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return nil, err
	}
	return k, nil
}

// KeyFromBytes copies b into a Key.
func KeyFromBytes(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("onion: invalid key length %d", len(b))
	}
	k := new(Key)
	copy(k[:], b)
	return k, nil
}

// Fingerprint returns a short, printable digest of the key, suitable for
// logging.
func (k *Key) Fingerprint() string {
	h := hash.Sum256(k[:])
	return hex.EncodeToString(h[:8])
}

// Reset clears the key material.
func (k *Key) Reset() {
	for i := range k {
		k[i] = 0
	}
}

func (k *Key) aead() cipher.AEAD {
	a, err := chacha20poly1305.NewX(k[:])
	if err != nil {
		// Only possible on a bad key length, which the type prevents.
		panic("onion: chacha20poly1305.NewX failed: " + err.Error())
	}
	return a
}

// Seal adds one layer to plaintext under key, drawing the nonce from r.
func Seal(r io.Reader, key *Key, plaintext []byte) ([]byte, error) {
	return seal(r, key.aead(), plaintext)
}

// Open removes one layer sealed under key.
func Open(key *Key, ciphertext []byte) ([]byte, error) {
	return open(key.aead(), ciphertext)
}

func seal(r io.Reader, a cipher.AEAD, plaintext []byte) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+a.Overhead())
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("onion: failed to generate nonce: %v", err)
	}
	return a.Seal(out, out[:NonceSize], plaintext, nil), nil
}

func open(a cipher.AEAD, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, ErrAuthentication
	}
	nonce, box := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := a.Open(make([]byte, 0, len(box)), nonce, box, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// SealedSize returns the size of plaintext of length n after adding the
// given number of layers.
func SealedSize(n, layers int) int {
	return n + layers*Overhead
}
