// file.go - File helpers.
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

// Package utils provides small file system helpers.
package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Exists returns true if f exists.  Errors other than "does not exist" are
// returned to the caller.
func Exists(f string) (bool, error) {
	_, err := os.Stat(f)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// WriteFileExclusive writes b to f with mode perm, creating the parent
// directory if needed.  Unless overwrite is set an existing file is an error.
func WriteFileExclusive(f string, b []byte, perm os.FileMode, overwrite bool) error {
	const dirMode = 0700

	if err := os.MkdirAll(filepath.Dir(f), dirMode); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	fd, err := os.OpenFile(f, flags, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("utils: refusing to overwrite '%v'", f)
		}
		return err
	}
	if _, err = fd.Write(b); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}
