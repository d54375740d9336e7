package store

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// SeenSet tracks transaction ids already observed within a single file. It
// backs the one import mode that disambiguates intra-file duplicate ids with
// a numeric suffix instead of letting the store drop them.
//
// Ids are tracked as 64-bit xxh3 fingerprints rather than strings so the set
// stays small on multi-million-row files. A fingerprint collision would
// suffix a non-duplicate row; at 64 bits that trade-off is acceptable for a
// best-effort disambiguation mode.
type SeenSet struct {
	counts map[uint64]uint32
}

// NewSeenSet returns an empty set sized for sizeHint ids.
func NewSeenSet(sizeHint int) *SeenSet {
	if sizeHint <= 0 {
		sizeHint = 1024
	}
	return &SeenSet{counts: make(map[uint64]uint32, sizeHint)}
}

// Disambiguate records one occurrence of id and returns the id to commit:
// unchanged for the first occurrence, "<id>-2", "<id>-3", ... for repeats
// within the same file.
func (s *SeenSet) Disambiguate(id string) string {
	h := xxh3.HashString(id)
	s.counts[h]++
	if n := s.counts[h]; n > 1 {
		return fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

// Len reports how many distinct ids have been observed.
func (s *SeenSet) Len() int { return len(s.counts) }
