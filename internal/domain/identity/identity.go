// Package identity derives stable identity hashes for inventory items and
// provides the set operations the diff engine needs.
package identity

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/okian/steamwatch/internal/domain/model"
)

// HashLen is the length of a hex encoded identity hash (128 bits).
const HashLen = 32

// separator never appears in Steam ids and keeps field boundaries unambiguous.
const separator = "\x1f"

// Hash returns the identity hash of an item computed from its asset, class
// and instance ids. Missing ids hash as empty strings.
func Hash(item model.Item) string {
	sum := sha256.Sum256([]byte(item.AssetID + separator + item.ClassID + separator + item.InstanceID))
	return hex.EncodeToString(sum[:HashLen/2])
}

// Set is a set of identity hashes.
type Set map[string]struct{}

// NewSet builds a set from hashes.
func NewSet(hashes ...string) Set {
	s := make(Set, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Of hashes every item into a set.
func Of(items []model.Item) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[Hash(it)] = struct{}{}
	}
	return s
}

// Has reports whether h is in the set.
func (s Set) Has(h string) bool {
	_, ok := s[h]
	return ok
}

// Minus returns the hashes of s that are not in other.
func (s Set) Minus(other Set) Set {
	out := make(Set)
	for h := range s {
		if !other.Has(h) {
			out[h] = struct{}{}
		}
	}
	return out
}

// Slice returns the members in unspecified order.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	return out
}
