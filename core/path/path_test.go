// path_test.go - Onion path selection tests.
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

package path

import (
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/ghosttalk/ghosttalk/core/pki"
)

func TestSelectDistinct(t *testing.T) {
	require := require.New(t)

	doc := pki.New("127.0.0.1", []int{5001, 5002, 5003, 5004, 5005}, 6000, pki.TransportTCP)
	rng := rand.NewMath()

	for i := 0; i < 1000; i++ {
		p, err := Select(rng, doc, DefaultLength)
		require.NoError(err)
		require.Len(p, DefaultLength)

		seen := make(map[pki.RelayID]bool)
		for _, id := range p {
			require.True(doc.Contains(id))
			require.False(seen[id], "relay %v selected twice", id)
			seen[id] = true
		}
	}
}

func TestSelectUniform(t *testing.T) {
	require := require.New(t)

	doc := pki.New("127.0.0.1", []int{5001, 5002, 5003, 5004}, 6000, pki.TransportTCP)
	rng := rand.NewMath()

	const trials = 40000
	firstHop := make(map[pki.RelayID]int)
	for i := 0; i < trials; i++ {
		p, err := Select(rng, doc, 2)
		require.NoError(err)
		firstHop[p.First()]++
	}

	expected := float64(trials) / float64(len(doc.Relays))
	for id, n := range firstHop {
		require.InDelta(expected, float64(n), expected*0.05, "first hop %v", id)
	}
}

func TestSelectErrors(t *testing.T) {
	require := require.New(t)

	doc := pki.New("127.0.0.1", []int{5001, 5002}, 6000, pki.TransportTCP)
	rng := rand.NewMath()

	_, err := Select(rng, doc, 3)
	require.ErrorIs(err, ErrNotEnoughRelays)

	_, err = Select(rng, doc, 0)
	require.Error(err)

	// Using every relay is a permutation of the set.
	p, err := Select(rng, doc, 2)
	require.NoError(err)
	require.ElementsMatch(doc.Relays, []pki.RelayID(p))
}

func TestPathFormat(t *testing.T) {
	require := require.New(t)

	p := Path{"a:1", "b:2", "c:3"}
	require.Equal(pki.RelayID("a:1"), p.First())
	require.Equal("a:1 -> b:2 -> c:3", p.String())
}

func TestFactory(t *testing.T) {
	require := require.New(t)

	doc := pki.New("127.0.0.1", []int{5001, 5002, 5003}, 6000, pki.TransportTCP)
	f := NewFactory(doc, DefaultLength)
	require.Equal(DefaultLength, f.Length())

	p, err := f.Compose()
	require.NoError(err)
	require.ElementsMatch(doc.Relays, []pki.RelayID(p))
}
