package nodeways

import (
	"context"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/route"
	"github.com/tebben/conflator/routing"
)

// MatchClient map-matches coordinates with the routing engine.
type MatchClient interface {
	Match(ctx context.Context, version string, locations []routing.Location) ([]routing.Leg, error)
}

type Matcher struct {
	client MatchClient
	index  *Index
}

func NewMatcher(client MatchClient, index *Index) *Matcher {
	return &Matcher{client: client, index: index}
}

// Match returns the conflation map segments along a GPS trace, nil when the
// routing engine could not match it.
func (m *Matcher) Match(ctx context.Context, version string, locations []routing.Location) ([]int64, error) {
	start := time.Now()

	legs, err := m.client.Match(ctx, version, locations)
	if err != nil {
		return nil, fmt.Errorf("matching failed: %w", err)
	}

	nodes := route.Extract(legs, nil).Nodes
	if len(nodes) == 0 {
		return nil, nil
	}

	lookup, err := m.index.Lookup(nodes)
	if err != nil {
		return nil, fmt.Errorf("node lookup failed: %w", err)
	}

	ways := MatchWays(nodes, lookup)
	log.Debugf("matched %d nodes to %d segments in %v", len(nodes), len(ways), time.Since(start))

	return ways, nil
}

// MatchWays walks the nodes and keeps, for every consecutive pair, the
// segments both nodes are on in increasing position. When several segments
// qualify for a pair the smallest id is kept. A single node yields all its
// segments.
func MatchWays(nodes []int64, lookup map[int64]NodeWays) []int64 {
	if len(nodes) == 1 {
		ways := sortedWays(lookup[nodes[0]])
		if len(ways) == 0 {
			return nil
		}
		return ways
	}

	// positions already used per node and segment, a node can be on a
	// segment more than once
	used := make(map[int64]map[int64]int)
	last := make(map[int64]int)

	var candidates [][]int64
	for i, node := range nodes {
		var pair []int64

		for _, way := range sortedWays(lookup[node]) {
			if used[node] == nil {
				used[node] = make(map[int64]int)
			}

			indexes := lookup[node][way]
			n := used[node][way]
			if n >= len(indexes) {
				continue
			}
			used[node][way] = n + 1
			idx := indexes[n]

			if prev, ok := last[way]; ok && prev < idx {
				pair = append(pair, way)
			}
			last[way] = idx
		}

		if i > 0 {
			candidates = append(candidates, pair)
		}
	}

	var ways []int64
	var previous []int64
	for i, pair := range candidates {
		if i > 0 && slices.Equal(pair, previous) {
			continue
		}
		previous = pair

		if len(pair) == 0 {
			continue
		}
		if n := len(ways); n > 0 && ways[n-1] == pair[0] {
			continue
		}
		ways = append(ways, pair[0])
	}

	return ways
}

func sortedWays(ways NodeWays) []int64 {
	result := make([]int64, 0, len(ways))
	for way := range ways {
		result = append(result, way)
	}
	slices.Sort(result)
	return result
}
