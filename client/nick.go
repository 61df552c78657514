// nick.go - Chat nicknames.
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

package client

import (
	"errors"
	"fmt"

	"github.com/katzenpost/hpqc/rand"
	"golang.org/x/text/secure/precis"
)

// NicknameLength is the length of a generated nickname.
const NicknameLength = 5

// ErrInvalidNickname is returned for nicknames that cannot be normalized.
var ErrInvalidNickname = errors.New("client: invalid nickname")

// RandomNickname returns NicknameLength random lowercase ASCII letters.
func RandomNickname() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"

	r := rand.NewMath()
	b := make([]byte, NicknameLength)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

// NormalizeNickname maps a user supplied nickname to its canonical form.
func NormalizeNickname(s string) (string, error) {
	n, err := precis.UsernameCaseMapped.String(s)
	if err != nil {
		return "", fmt.Errorf("%w: '%v': %v", ErrInvalidNickname, s, err)
	}
	if n == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNickname)
	}
	return n, nil
}

// FormatMessage renders a chat line.
func FormatMessage(nick, text string) string {
	return nick + ": " + text
}
