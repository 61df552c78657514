// onion_test.go - Onion layer tests.
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
	"path/filepath"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/ghosttalk/ghosttalk/core/pki"
)

var testRelays = []pki.RelayID{"127.0.0.1:5001", "127.0.0.1:5002", "127.0.0.1:5003"}

func newTestKeys(t *testing.T) map[pki.RelayID]*Key {
	keys := make(map[pki.RelayID]*Key)
	for _, id := range testRelays {
		k, err := GenerateKey(nil)
		require.NoError(t, err)
		keys[id] = k
	}
	return keys
}

func TestSealOpen(t *testing.T) {
	require := require.New(t)

	k, err := GenerateKey(rand.Reader)
	require.NoError(err)
	other, err := GenerateKey(rand.Reader)
	require.NoError(err)

	msg := []byte("hello")
	ct, err := Seal(nil, k, msg)
	require.NoError(err)
	require.Len(ct, SealedSize(len(msg), 1))

	pt, err := Open(k, ct)
	require.NoError(err)
	require.Equal(msg, pt)

	_, err = Open(other, ct)
	require.ErrorIs(err, ErrAuthentication)

	ct[len(ct)-1] ^= 0x01
	_, err = Open(k, ct)
	require.ErrorIs(err, ErrAuthentication)

	_, err = Open(k, ct[:Overhead-1])
	require.ErrorIs(err, ErrAuthentication)

	require.NotEqual(k.Fingerprint(), other.Fingerprint())
	require.Len(k.Fingerprint(), 16)
}

func TestLayeringRoundTrip(t *testing.T) {
	require := require.New(t)

	reg := NewRegistry(newTestKeys(t))

	for _, msg := range [][]byte{[]byte("hello"), {}, make([]byte, 2048)} {
		hops := []pki.RelayID{testRelays[1], testRelays[2], testRelays[0]}
		payload, err := reg.Wrap(hops, msg)
		require.NoError(err)
		require.Len(payload, SealedSize(len(msg), len(hops)))

		for i, id := range hops {
			// Every relay but the current outermost one must fail loudly.
			for _, other := range testRelays {
				if other == id {
					continue
				}
				_, err := reg.Decrypt(other, payload)
				require.True(errors.Is(err, ErrAuthentication), "hop %d decrypted by %v", i, other)
			}

			payload, err = reg.Decrypt(id, payload)
			require.NoError(err)
		}
		require.Equal(msg, payload)
	}
}

func TestPeelingDeterminism(t *testing.T) {
	require := require.New(t)

	keys := newTestKeys(t)
	seed := make([]byte, 32)

	r1, err := rand.NewDeterministicRandReader(seed)
	require.NoError(err)
	r2, err := rand.NewDeterministicRandReader(seed)
	require.NoError(err)

	a, b, c := testRelays[0], testRelays[1], testRelays[2]
	full, err := NewRegistryWithEntropy(keys, r1).Wrap([]pki.RelayID{a, b, c}, []byte("hello"))
	require.NoError(err)
	tail, err := NewRegistryWithEntropy(keys, r2).Wrap([]pki.RelayID{b, c}, []byte("hello"))
	require.NoError(err)

	peeled, err := NewRegistry(keys).Decrypt(a, full)
	require.NoError(err)
	require.Equal(tail, peeled)
}

func TestRegistryUnknownRelay(t *testing.T) {
	require := require.New(t)

	reg := NewRegistry(newTestKeys(t))
	require.True(reg.Has(testRelays[0]))
	require.False(reg.Has("127.0.0.1:9999"))
	require.Equal(testRelays, reg.Relays())

	_, err := reg.Encrypt("127.0.0.1:9999", []byte("x"))
	require.ErrorIs(err, ErrUnknownRelay)
	_, err = reg.Decrypt("127.0.0.1:9999", []byte("x"))
	require.ErrorIs(err, ErrUnknownRelay)
	_, err = reg.Wrap([]pki.RelayID{testRelays[0], "127.0.0.1:9999"}, []byte("x"))
	require.ErrorIs(err, ErrUnknownRelay)
}

func TestKeyring(t *testing.T) {
	require := require.New(t)

	kr, err := GenerateKeyring(nil, testRelays)
	require.NoError(err)
	require.NoError(kr.Require(testRelays...))

	f := filepath.Join(t.TempDir(), "keyring.cbor")
	require.NoError(StoreKeyring(f, kr, false))
	require.Error(StoreKeyring(f, kr, false), "keyring overwritten without consent")

	loaded, err := LoadKeyring(f)
	require.NoError(err)
	require.Equal(kr, loaded)

	// A message layered with the full keyring opens with a relay's subset.
	full, err := loaded.Registry()
	require.NoError(err)
	ct, err := full.Encrypt(testRelays[1], []byte("hello"))
	require.NoError(err)

	sub, err := loaded.Subset(testRelays[1])
	require.NoError(err)
	require.Len(sub.Keys, 1)
	subReg, err := sub.Registry()
	require.NoError(err)
	pt, err := subReg.Decrypt(testRelays[1], ct)
	require.NoError(err)
	require.Equal([]byte("hello"), pt)

	fp1, err := full.Fingerprint(testRelays[1])
	require.NoError(err)
	fp2, err := subReg.Fingerprint(testRelays[1])
	require.NoError(err)
	require.Equal(fp1, fp2)

	_, err = loaded.Subset("127.0.0.1:9999")
	require.ErrorIs(err, ErrMissingKey)
}

func TestKeyringMalformed(t *testing.T) {
	require := require.New(t)

	kr := &Keyring{Keys: map[string][]byte{"127.0.0.1:5001": {1, 2, 3}}}
	b, err := kr.MarshalBinary()
	require.NoError(err)
	require.Error(new(Keyring).UnmarshalBinary(b))

	require.Error(new(Keyring).UnmarshalBinary([]byte("not cbor")))
}
