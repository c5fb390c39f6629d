package dsa

import (
	"slices"
	"sort"
	"strings"
)

// LineIndex answers case-insensitive substring queries over a document and
// reports the lines that contain each match.
//
// The document is case-folded once and indexed with a suffix array built by
// prefix doubling, so a query costs O(m log n) plus the number of matches.
type LineIndex struct {
	text  string // folded document
	sa    []int  // sa[i] = start of the i-th smallest suffix
	lines []int  // byte offset at which each line starts
}

// NewLineIndex indexes doc. Lines are separated by '\n'.
func NewLineIndex(doc string) *LineIndex {
	text := strings.ToLower(doc)
	idx := &LineIndex{text: text, sa: buildSuffixArray(text), lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && i+1 < len(text) {
			idx.lines = append(idx.lines, i+1)
		}
	}
	return idx
}

// Count returns the number of occurrences of query.
func (x *LineIndex) Count(query string) int {
	lo, hi := x.bounds(strings.ToLower(query))
	return hi - lo
}

// Lines returns the 1-based numbers of the lines containing query, in
// ascending order and without duplicates.
func (x *LineIndex) Lines(query string) []int {
	lo, hi := x.bounds(strings.ToLower(query))
	if lo == hi {
		return nil
	}
	seen := make(map[int]bool, hi-lo)
	var out []int
	for _, pos := range x.sa[lo:hi] {
		// Index of the last line start <= pos.
		line := sort.SearchInts(x.lines, pos+1)
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	slices.Sort(out)
	return out
}

// bounds returns the half-open range of sa whose suffixes start with p.
func (x *LineIndex) bounds(p string) (int, int) {
	if p == "" || len(x.sa) == 0 {
		return 0, 0
	}
	prefix := func(i int) string {
		s := x.text[x.sa[i]:]
		if len(s) > len(p) {
			s = s[:len(p)]
		}
		return s
	}
	lo := sort.Search(len(x.sa), func(i int) bool { return prefix(i) >= p })
	hi := sort.Search(len(x.sa), func(i int) bool { return prefix(i) > p })
	return lo, hi
}

func buildSuffixArray(text string) []int {
	n := len(text)
	sa := make([]int, n)
	rank := make([]int, n)
	tmp := make([]int, n)
	for i := range n {
		sa[i] = i
		rank[i] = int(text[i])
	}
	if n < 2 {
		return sa
	}

	for k := 1; ; k *= 2 {
		second := func(i int) int {
			if i+k < n {
				return rank[i+k]
			}
			return -1
		}
		less := func(a, b int) bool {
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}
			return second(a) < second(b)
		}
		slices.SortFunc(sa, func(a, b int) int {
			switch {
			case less(a, b):
				return -1
			case less(b, a):
				return 1
			}
			return 0
		})

		tmp[sa[0]] = 0
		for i := 1; i < n; i++ {
			tmp[sa[i]] = tmp[sa[i-1]]
			if less(sa[i-1], sa[i]) {
				tmp[sa[i]]++
			}
		}
		copy(rank, tmp)

		if rank[sa[n-1]] == n-1 || k >= n {
			return sa
		}
	}
}
