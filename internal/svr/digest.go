package svr

import (
	"math"
	"strings"
)

// digest is a normalized token multiset: lowercase word -> occurrence count.
// It is the unit every similarity/novelty dimension in this package is built
// from (spec §4.2's ContentDigest).
type digest map[string]int

// tokenize splits s into lowercase alphanumeric tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// newDigest builds a digest from a piece of text.
func newDigest(s string) digest {
	d := make(digest)
	for _, tok := range tokenize(s) {
		d[tok]++
	}
	return d
}

// unionDigests merges a set of digests into one, summing counts.
func unionDigests(digests ...digest) digest {
	out := make(digest)
	for _, d := range digests {
		for tok, c := range d {
			out[tok] += c
		}
	}
	return out
}

// jaccard computes the multiset Jaccard similarity between two digests:
// sum(min(a,b)) / sum(max(a,b)), 1.0 when both are empty (no disagreement
// possible between two silences).
func jaccard(a, b digest) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var inter, uni float64
	seen := make(map[string]bool, len(a)+len(b))
	for tok, ca := range a {
		cb := b[tok]
		inter += float64(min(ca, cb))
		uni += float64(max(ca, cb))
		seen[tok] = true
	}
	for tok, cb := range b {
		if seen[tok] {
			continue
		}
		uni += float64(cb)
	}
	if uni == 0 {
		return 1
	}
	return inter / uni
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ngramSet returns the set of contiguous n-token windows of s, as a digest
// over the joined n-gram strings.
func ngramSet(s string, n int) digest {
	toks := tokenize(s)
	d := make(digest)
	if n <= 0 || len(toks) < n {
		return d
	}
	for i := 0; i+n <= len(toks); i++ {
		d[strings.Join(toks[i:i+n], " ")]++
	}
	return d
}

// normalizedEntropy returns the Shannon entropy of a frequency distribution,
// normalized to [0,1] by dividing by log2(len(counts)). Returns 0 for a
// degenerate distribution (0 or 1 distinct keys).
func normalizedEntropy(counts map[string]int) float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	if n == 0 || len(counts) <= 1 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	maxH := math.Log2(float64(len(counts)))
	if maxH == 0 {
		return 0
	}
	return h / maxH
}
