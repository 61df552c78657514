// router.go - Relay next hop selection.
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

package relay

import (
	mRand "math/rand"
	"sync"

	"github.com/katzenpost/hpqc/rand"

	"github.com/ghosttalk/ghosttalk/core/pki"
)

// Router picks the next hop for a peeled message.  The decision depends on
// nothing but a fresh uniform draw: it ignores the payload, the sender's
// path and the number of layers left.
type Router struct {
	sync.Mutex

	rng         *mRand.Rand
	others      []pki.RelayID
	chatroom    string
	probability float64
}

// Next returns the next destination, and true iff it is the chatroom.
func (r *Router) Next() (string, bool) {
	r.Lock()
	defer r.Unlock()

	// A lone relay has nowhere else to go.
	if len(r.others) == 0 || r.rng.Float64() >= r.probability {
		return r.chatroom, true
	}
	return string(r.others[r.rng.Intn(len(r.others))]), false
}

// NewRouter returns a Router for the relay self, forwarding to another relay
// with probability p and to the chatroom otherwise.
func NewRouter(doc *pki.Document, self pki.RelayID, p float64) *Router {
	return NewRouterWithRand(rand.NewMath(), doc, self, p)
}

// NewRouterWithRand returns a Router drawing from rng.
func NewRouterWithRand(rng *mRand.Rand, doc *pki.Document, self pki.RelayID, p float64) *Router {
	return &Router{
		rng:         rng,
		others:      doc.Others(self),
		chatroom:    doc.Chatroom,
		probability: p,
	}
}
