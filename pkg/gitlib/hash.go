// Package gitlib implements the crawl's version-control capability on top of libgit2.
package gitlib

import (
	"encoding/hex"
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// hexLen is the length of a full SHA-1 object id in hex.
const hexLen = 2 * len(Hash{})

// ErrInvalidHash is returned when a string is not a full hex object id.
var ErrInvalidHash = errors.New("invalid object hash")

// Hash is a SHA-1 object id.
type Hash git2go.Oid

// ParseHash accepts only full 40-character ids; abbreviated ids are ambiguous
// across the refs the crawl walks.
func ParseHash(s string) (Hash, error) {
	var h Hash

	if len(s) != hexLen {
		return h, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}

	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}

	return h, nil
}

func hashOf(oid *git2go.Oid) Hash {
	if oid == nil {
		return Hash{}
	}

	return Hash(*oid)
}

// String returns the 40-character lowercase hex form git prints.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero id.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) oid() *git2go.Oid {
	oid := git2go.Oid(h)

	return &oid
}
