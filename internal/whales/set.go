// Package whales holds the immutable set of tracked wallet addresses.
package whales

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// Set is a read-only, lower-cased set of wallet addresses. It is safe for concurrent use.
type Set struct {
	members map[string]struct{}
}

// New builds a Set from addresses. Invalid hex addresses are dropped; the number dropped is returned.
// An empty result is an error.
func New(addresses []string) (*Set, int, error) {
	members := make(map[string]struct{}, len(addresses))
	skipped := 0

	for _, addr := range addresses {
		norm, ok := Normalize(addr)
		if !ok {
			skipped++
			continue
		}
		members[norm] = struct{}{}
	}

	if len(members) == 0 {
		return nil, skipped, types.ErrEmptyWhaleSet
	}

	return &Set{members: members}, skipped, nil
}

// Normalize lower-cases and validates a 20-byte hex address.
func Normalize(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), true
}

// Contains reports whether addr is tracked. Matching is case-insensitive.
func (s *Set) Contains(addr string) bool {
	if s == nil || addr == "" {
		return false
	}
	_, ok := s.members[strings.ToLower(strings.TrimSpace(addr))]
	return ok
}

// Len returns the number of tracked addresses.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Addresses returns the tracked addresses, sorted.
func (s *Set) Addresses() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.members))
	for addr := range s.members {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
