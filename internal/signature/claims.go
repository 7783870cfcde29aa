package signature

import "slices"

// Sentinel replaces claimed bytes in masked text. It matches no pattern
// character class that a speaker marker needs.
const Sentinel byte = 0x1a

// Claims is the set of byte ranges already attributed to a match.
type Claims struct {
	spans [][2]int // sorted by start
}

// Add claims [start, end). Empty ranges are ignored.
func (c *Claims) Add(start, end int) {
	if start >= end {
		return
	}
	i, _ := slices.BinarySearchFunc(c.spans, start, func(s [2]int, t int) int { return s[0] - t })
	c.spans = slices.Insert(c.spans, i, [2]int{start, end})
}

// Overlaps reports whether [start, end) shares a byte with any claim.
func (c *Claims) Overlaps(start, end int) bool {
	for _, s := range c.spans {
		if s[0] >= end {
			break
		}
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// Len returns the number of claims.
func (c *Claims) Len() int { return len(c.spans) }

// Mask returns text with every claimed byte replaced by Sentinel. The
// result has the same length, so offsets carry over unchanged.
func (c *Claims) Mask(text string) string {
	if len(c.spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, s := range c.spans {
		end := min(s[1], len(b))
		for i := s[0]; i < end; i++ {
			b[i] = Sentinel
		}
	}
	return string(b)
}
