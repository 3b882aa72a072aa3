package conflation

import (
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ResolveDirection picks the direction of a base way that matches the
// traversed nodes. The conflation map decomposes ways in both directions and
// only one decomposition follows the order of travel.
func ResolveDirection(traversed []int64, forward, backward []MapSegment) Direction {
	switch {
	case len(backward) == 0:
		return Forward
	case len(forward) == 0:
		return Backward
	}

	fwd := lcsLength(traversed, concatNodes(forward))
	bwd := lcsLength(traversed, concatNodes(backward))
	if bwd > fwd {
		return Backward
	}

	return Forward
}

func concatNodes(segments []MapSegment) []int64 {
	var nodes []int64
	for _, s := range segments {
		nodes = append(nodes, s.NodeIDs...)
	}
	return nodes
}

// lcsLength returns the length of the longest common subsequence. With unit
// insert and delete costs and a substitution cost of two the edit distance
// is len(a)+len(b)-2*lcs.
func lcsLength(a, b []int64) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	symbols := make(map[int64]rune)
	ra := toRunes(a, symbols)
	rb := toRunes(b, symbols)

	options := levenshtein.Options{
		InsCost: 1,
		DelCost: 1,
		SubCost: 2,
		Matches: levenshtein.IdenticalRunes,
	}
	distance := levenshtein.DistanceForStrings(ra, rb, options)

	return (len(ra) + len(rb) - distance) / 2
}

// toRunes maps node ids onto dense symbols shared between both sequences.
func toRunes(nodes []int64, symbols map[int64]rune) []rune {
	runes := make([]rune, len(nodes))
	for i, n := range nodes {
		r, ok := symbols[n]
		if !ok {
			r = rune(len(symbols))
			symbols[n] = r
		}
		runes[i] = r
	}
	return runes
}
