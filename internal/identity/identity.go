// Package identity derives stable point identities from content, so that
// re-ingesting unchanged content always maps to the same index point.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// maxPointID bounds point identifiers to the index service's unsigned
// integer domain (16 decimal digits).
const maxPointID = 10_000_000_000_000_000

// Normalize canonicalizes text for identity assignment: case-folded,
// whitespace runs collapsed to single spaces, ends trimmed.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(unicode.ToLower(r))
			wasSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// PointID returns the point identifier for a content unit: a sha256 digest
// over the canonical text and its source context, reduced to the index
// service's identifier domain. Same inputs always produce the same ID,
// across processes and platforms.
func PointID(canonicalText, sourceID string, page int) uint64 {
	h := sha256.New()
	h.Write([]byte(canonicalText))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(page)))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]) % maxPointID
}

// CompressPageRanges renders a set of page numbers as a minimal ordered list
// of closed intervals: {1,2,3,5,7,8,9} becomes "1-3,5,7-9", {4} becomes "4",
// the empty set becomes "". Input order and duplicates do not matter.
func CompressPageRanges(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	sorted := make([]int, 0, len(pages))
	seen := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		sorted = append(sorted, p)
	}
	sort.Ints(sorted)

	var ranges []string
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			ranges = append(ranges, strconv.Itoa(start))
		} else {
			ranges = append(ranges, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, p := range sorted[1:] {
		if p == prev+1 {
			prev = p
			continue
		}
		flush()
		start, prev = p, p
	}
	flush()
	return strings.Join(ranges, ",")
}
