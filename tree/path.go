// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Path addresses a value in the durable tree, e.g. "/pvm/memory/length".
// Segments are separated by '/' and restricted to [A-Za-z0-9._-].
type Path string

var ErrInvalidPath = errors.New("invalid durable path")

// Valid reports whether [p] is a well-formed durable path.
func Valid(p Path) error {
	s := string(p)
	if len(s) == 0 || s[0] != '/' {
		return fmt.Errorf("%w: %q must start with '/'", ErrInvalidPath, s)
	}
	for _, seg := range strings.Split(s[1:], "/") {
		if len(seg) == 0 {
			return fmt.Errorf("%w: %q contains an empty segment", ErrInvalidPath, s)
		}
		for _, c := range seg {
			if !validPathChar(c) {
				return fmt.Errorf("%w: %q contains %q", ErrInvalidPath, s, c)
			}
		}
	}
	return nil
}

func validPathChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-':
		return true
	default:
		return false
	}
}

// Join appends segments to [p].
func Join(p Path, segments ...string) Path {
	var sb strings.Builder
	sb.WriteString(string(p))
	for _, seg := range segments {
		sb.WriteByte('/')
		sb.WriteString(seg)
	}
	return Path(sb.String())
}

// Indexed appends a decimal index segment to [p]. Decimal keeps sibling
// listings readable in tooling; the tree itself does not order siblings.
func Indexed(p Path, index uint64) Path {
	return Join(p, strconv.FormatUint(index, 10))
}
