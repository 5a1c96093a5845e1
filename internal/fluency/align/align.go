// Package align computes a longest-matching-block alignment between two token
// sequences.
//
// The algorithm repeatedly finds the longest contiguous run of identical
// tokens shared by the two (sub)sequences, records it as an [Equal] op and
// recurses on the unmatched regions before and after it. A region that shares
// no token at all becomes a single [Replace], [Delete] or [Insert] op.
//
// This is not a minimum-edit-distance alignment: it prefers long contiguous
// matches, which decides whether a differing span is reported as one
// substitution or as an omission plus an insertion. Ties between equally long
// blocks go to the block starting earliest in the original sequence, then
// earliest in the transcript sequence. No token is ever treated as junk,
// however often it repeats.
package align

import (
	"cmp"
	"slices"
)

// Tag labels an [Op].
type Tag int

const (
	// Equal means original[I1:I2] == transcript[J1:J2].
	Equal Tag = iota

	// Replace means original[I1:I2] was read as transcript[J1:J2].
	Replace

	// Delete means original[I1:I2] has no counterpart (J1 == J2).
	Delete

	// Insert means transcript[J1:J2] has no counterpart (I1 == I2).
	Insert
)

// String returns the lower-case name of the tag.
func (t Tag) String() string {
	switch t {
	case Equal:
		return "equal"
	case Replace:
		return "replace"
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	default:
		return "unknown"
	}
}

// Op is one aligned span. Ranges are half-open: [I1, I2) on the original side
// and [J1, J2) on the transcript side.
type Op struct {
	Tag    Tag
	I1, I2 int
	J1, J2 int
}

// block is a matching run: original[a:a+size] == transcript[b:b+size].
type block struct {
	a, b, size int
}

// region is a pair of half-open ranges still to be aligned.
type region struct {
	alo, ahi, blo, bhi int
}

// matcher holds the sequences and a token → transcript positions index.
type matcher struct {
	a, b []string
	b2j  map[string][]int
}

func newMatcher(original, transcript []string) *matcher {
	b2j := make(map[string][]int, len(transcript))
	for j, tok := range transcript {
		b2j[tok] = append(b2j[tok], j)
	}
	return &matcher{a: original, b: transcript, b2j: b2j}
}

// longest finds the longest block inside a[alo:ahi] × b[blo:bhi]. Among
// equally long blocks it returns the one with the smallest a index, then the
// smallest b index. size is 0 when the region shares no token.
func (m *matcher) longest(r region) block {
	best := block{a: r.alo, b: r.blo}

	// runLen[j] is the length of the match ending at a[i-1], b[j].
	runLen := map[int]int{}
	for i := r.alo; i < r.ahi; i++ {
		next := make(map[int]int)
		for _, j := range m.b2j[m.a[i]] {
			if j < r.blo {
				continue
			}
			if j >= r.bhi {
				break
			}
			k := runLen[j-1] + 1
			next[j] = k
			if k > best.size {
				best = block{a: i - k + 1, b: j - k + 1, size: k}
			}
		}
		runLen = next
	}
	return best
}

// blocks returns all matching blocks in order, with adjacent blocks merged.
func (m *matcher) blocks() []block {
	var found []block
	stack := []region{{0, len(m.a), 0, len(m.b)}}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		blk := m.longest(r)
		if blk.size == 0 {
			continue
		}
		found = append(found, blk)
		if r.alo < blk.a && r.blo < blk.b {
			stack = append(stack, region{r.alo, blk.a, r.blo, blk.b})
		}
		if blk.a+blk.size < r.ahi && blk.b+blk.size < r.bhi {
			stack = append(stack, region{blk.a + blk.size, r.ahi, blk.b + blk.size, r.bhi})
		}
	}

	slices.SortFunc(found, func(x, y block) int {
		if c := cmp.Compare(x.a, y.a); c != 0 {
			return c
		}
		return cmp.Compare(x.b, y.b)
	})

	merged := found[:0]
	for _, blk := range found {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.a+last.size == blk.a && last.b+last.size == blk.b {
				last.size += blk.size
				continue
			}
		}
		merged = append(merged, blk)
	}
	return merged
}

// Align returns the ordered ops that transform original into transcript.
// The ops partition [0, len(original)) and [0, len(transcript)) without gaps
// or overlaps. Two empty sequences yield no ops.
func Align(original, transcript []string) []Op {
	m := newMatcher(original, transcript)
	blocks := append(m.blocks(), block{a: len(original), b: len(transcript)})

	var ops []Op
	i, j := 0, 0
	for _, blk := range blocks {
		switch {
		case i < blk.a && j < blk.b:
			ops = append(ops, Op{Tag: Replace, I1: i, I2: blk.a, J1: j, J2: blk.b})
		case i < blk.a:
			ops = append(ops, Op{Tag: Delete, I1: i, I2: blk.a, J1: j, J2: j})
		case j < blk.b:
			ops = append(ops, Op{Tag: Insert, I1: i, I2: i, J1: j, J2: blk.b})
		}
		i, j = blk.a+blk.size, blk.b+blk.size
		if blk.size > 0 {
			ops = append(ops, Op{Tag: Equal, I1: blk.a, I2: i, J1: blk.b, J2: j})
		}
	}
	return ops
}
