// path.go - Onion path selection.
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

// Package path provides routines for path selection.
package path

import (
	"errors"
	"fmt"
	mRand "math/rand"
	"strings"
	"sync"

	"github.com/katzenpost/hpqc/rand"

	"github.com/ghosttalk/ghosttalk/core/pki"
)

// DefaultLength is the reference number of hops in a path.
const DefaultLength = 3

// ErrNotEnoughRelays is the error returned when the document has fewer
// relays than the requested path length.
var ErrNotEnoughRelays = errors.New("path: not enough relays")

// Path is an ordered sequence of distinct relays, from the first hop (the
// outermost layer) to the last.
type Path []pki.RelayID

// First returns the first hop.
func (p Path) First() pki.RelayID {
	return p[0]
}

func (p Path) String() string {
	s := make([]string, 0, len(p))
	for _, id := range p {
		s = append(s, string(id))
	}
	return strings.Join(s, " -> ")
}

// Select draws k distinct relays uniformly at random, without replacement.
func Select(rng *mRand.Rand, doc *pki.Document, k int) (Path, error) {
	if k <= 0 {
		return nil, fmt.Errorf("path: invalid length %d", k)
	}
	if len(doc.Relays) < k {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughRelays, len(doc.Relays), k)
	}

	perm := rng.Perm(len(doc.Relays))
	p := make(Path, k)
	for i := 0; i < k; i++ {
		p[i] = doc.Relays[perm[i]]
	}
	return p, nil
}

// Factory composes paths against a fixed document.  It is safe for
// concurrent use.
type Factory struct {
	sync.Mutex

	rng    *mRand.Rand
	doc    *pki.Document
	length int
}

// Compose returns a fresh random path.
func (f *Factory) Compose() (Path, error) {
	f.Lock()
	defer f.Unlock()
	return Select(f.rng, f.doc, f.length)
}

// Length returns the number of hops in every composed path.
func (f *Factory) Length() int {
	return f.length
}

// NewFactory returns a Factory backed by a CSPRNG.
func NewFactory(doc *pki.Document, length int) *Factory {
	return NewFactoryWithRand(rand.NewMath(), doc, length)
}

// NewFactoryWithRand returns a Factory drawing from rng.
func NewFactoryWithRand(rng *mRand.Rand, doc *pki.Document, length int) *Factory {
	return &Factory{
		rng:    rng,
		doc:    doc,
		length: length,
	}
}
