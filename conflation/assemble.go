package conflation

import (
	"github.com/tebben/conflator/route"
)

// WayTraversal is one contiguous pass over a base way.
type WayTraversal struct {
	WayID int64
	// Nodes are the traversed nodes of the way in travel order.
	Nodes []int64
	// Chain is filled in once the direction is known.
	Chain []MapSegment
}

type edge [2]int64

// undirected returns the edge with its smallest node first.
func undirected(a, b int64) edge {
	if a > b {
		return edge{b, a}
	}
	return edge{a, b}
}

// Traversals splits the named way groups of a route into passes over base
// ways, following the base way that owns each travelled node pair. Pairs
// not on any of the ways are skipped and counted.
func Traversals(extracted *route.Extracted, ways []BaseWay) ([]WayTraversal, int) {
	owner := make(map[edge]int64)
	for _, w := range ways {
		for i := 1; i < len(w.NodeIDs); i++ {
			e := undirected(w.NodeIDs[i-1], w.NodeIDs[i])
			if _, ok := owner[e]; !ok {
				owner[e] = w.ID
			}
		}
	}

	groups := extracted.WayNodeIDs
	if len(groups) == 0 {
		groups = [][]int64{extracted.Nodes}
	}

	var traversals []WayTraversal
	unmatched := 0

	for _, group := range groups {
		for i := 1; i < len(group); i++ {
			a, b := group[i-1], group[i]

			wayID, ok := owner[undirected(a, b)]
			if !ok {
				unmatched++
				continue
			}

			if n := len(traversals); n > 0 {
				last := &traversals[n-1]
				if last.WayID == wayID && last.Nodes[len(last.Nodes)-1] == a {
					last.Nodes = append(last.Nodes, b)
					continue
				}
			}

			traversals = append(traversals, WayTraversal{WayID: wayID, Nodes: []int64{a, b}})
		}
	}

	return traversals, unmatched
}

// Assemble walks the traversals in order and consumes, per way, the chain
// segments in chain order until every travelled node of the way is covered.
// A segment ending on the node where the previous way's last segment ended
// only closes that boundary and is skipped.
func Assemble(traversals []WayTraversal) []MapSegment {
	var (
		path        []MapSegment
		terminal    int64
		hasTerminal bool
	)

	for _, t := range traversals {
		prevTerminal, hasPrev := terminal, hasTerminal

		remaining := make(map[int64]struct{}, len(t.Nodes))
		for _, n := range t.Nodes {
			remaining[n] = struct{}{}
		}

		for _, s := range t.Chain {
			if len(remaining) == 0 {
				break
			}
			if hasPrev && s.Terminal() == prevTerminal {
				continue
			}

			path = append(path, s)
			for _, n := range s.NodeIDs {
				delete(remaining, n)
			}
			terminal, hasTerminal = s.Terminal(), true
		}
	}

	return path
}
