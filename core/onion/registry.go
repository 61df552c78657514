// registry.go - Per-relay cipher registry.
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
	"crypto/cipher"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/katzenpost/hpqc/rand"

	"github.com/ghosttalk/ghosttalk/core/pki"
)

type entry struct {
	aead        cipher.AEAD
	fingerprint string
}

// Registry holds one key per relay.  The key set is fixed at construction
// and the Registry is safe for concurrent use.
type Registry struct {
	entries map[pki.RelayID]*entry

	entropyLock sync.Mutex
	entropy     io.Reader
}

// NewRegistry returns a Registry for keys, drawing nonces from the system
// CSPRNG.
func NewRegistry(keys map[pki.RelayID]*Key) *Registry {
	return NewRegistryWithEntropy(keys, rand.Reader)
}

// NewRegistryWithEntropy returns a Registry that draws layer nonces from r.
// Only tests have a reason to pass anything but a CSPRNG.
func NewRegistryWithEntropy(keys map[pki.RelayID]*Key, r io.Reader) *Registry {
	reg := &Registry{
		entries: make(map[pki.RelayID]*entry, len(keys)),
		entropy: r,
	}
	for id, k := range keys {
		reg.entries[id] = &entry{
			aead:        k.aead(),
			fingerprint: k.Fingerprint(),
		}
	}
	return reg
}

func (r *Registry) get(id pki.RelayID) (*entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownRelay, id)
	}
	return e, nil
}

// Encrypt adds the layer that only relay id can remove.
func (r *Registry) Encrypt(id pki.RelayID, plaintext []byte) ([]byte, error) {
	e, err := r.get(id)
	if err != nil {
		return nil, err
	}

	r.entropyLock.Lock()
	defer r.entropyLock.Unlock()
	return seal(r.entropy, e.aead, plaintext)
}

// Decrypt removes relay id's layer from ciphertext.  It fails with
// ErrAuthentication if the outermost layer is not id's.
func (r *Registry) Decrypt(id pki.RelayID, ciphertext []byte) ([]byte, error) {
	e, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return open(e.aead, ciphertext)
}

// Wrap layers plaintext for hops, applying the last hop's key first so that
// only hops[0] can remove the outermost layer.
func (r *Registry) Wrap(hops []pki.RelayID, plaintext []byte) ([]byte, error) {
	payload := plaintext
	for i := len(hops) - 1; i >= 0; i-- {
		var err error
		if payload, err = r.Encrypt(hops[i], payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Has returns true iff a key is registered for id.
func (r *Registry) Has(id pki.RelayID) bool {
	_, ok := r.entries[id]
	return ok
}

// Fingerprint returns the printable digest of id's key.
func (r *Registry) Fingerprint(id pki.RelayID) (string, error) {
	e, err := r.get(id)
	if err != nil {
		return "", err
	}
	return e.fingerprint, nil
}

// Relays returns the relays with a registered key, sorted.
func (r *Registry) Relays() []pki.RelayID {
	ids := make([]pki.RelayID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
