package route

import (
	"slices"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/routing"
)

// Extracted is the canonical traversal of a routing engine response.
type Extracted struct {
	// Nodes never holds two consecutive equal ids.
	Nodes []int64
	// Ways are the named ways in travel order, WayNodeIDs[i] holds the
	// nodes travelled on Ways[i].
	Ways       []string
	WayNodeIDs [][]int64
	Geometry   orb.LineString

	// DisconnectedLegs counts legs whose first node was not found in the
	// nodes of the preceding legs.
	DisconnectedLegs int
	// KeyCollisions counts distinct nodes that rounded to an already used
	// coordinate key.
	KeyCollisions int
}

// Extract stitches the legs of a route into one traversal.
func Extract(legs []routing.Leg, geometry orb.LineString) *Extracted {
	e := &Extracted{Geometry: geometry}
	nodeAt := e.stitchNodes(legs)
	e.groupWays(legs, nodeAt)

	return e
}

// stitchNodes concatenates the annotation nodes of every leg. Consecutive
// legs usually repeat the nodes around the shared waypoint; that overlap is
// rewound so the boundary is counted once.
func (e *Extracted) stitchNodes(legs []routing.Leg) map[CoordKey]int64 {
	nodeAt := make(map[CoordKey]int64)
	cursor := 0

	emit := func(node int64) {
		if n := len(e.Nodes); n > 0 && e.Nodes[n-1] == node {
			return
		}
		e.Nodes = append(e.Nodes, node)

		if cursor < len(e.Geometry) {
			key := KeyOf(e.Geometry[cursor])
			if existing, ok := nodeAt[key]; !ok {
				nodeAt[key] = node
			} else if existing != node {
				e.KeyCollisions++
				log.Debugf("coordinate %v shared by nodes %d and %d, keeping %d", key, existing, node, existing)
			}
		}
		cursor++
	}

	for i, leg := range legs {
		nodes := dedupConsecutive(leg.Annotation.Nodes)
		if len(nodes) == 0 {
			continue
		}

		if i > 0 && len(e.Nodes) > 0 {
			n, connected := overlap(e.Nodes, nodes)
			if !connected {
				e.DisconnectedLegs++
				log.Warnf("leg %d starts at node %d which is not on the preceding legs", i, nodes[0])
			}
			e.Nodes = e.Nodes[:len(e.Nodes)-n]
			cursor -= n
		}

		for _, node := range nodes {
			emit(node)
		}
	}

	return nodeAt
}

// groupWays splits the traversal at every change of street name. Steps
// without a name do not open a group, their nodes extend the open one.
func (e *Extracted) groupWays(legs []routing.Leg, nodeAt map[CoordKey]int64) {
	open := -1

	for i, leg := range legs {
		legStart := i > 0

		for _, step := range leg.Steps {
			if step.Name != "" && (open < 0 || e.Ways[open] != step.Name) {
				e.Ways = append(e.Ways, step.Name)
				e.WayNodeIDs = append(e.WayNodeIDs, nil)
				open++
				legStart = false
			}

			if open < 0 {
				continue
			}

			nodes := make([]int64, 0, len(step.Geometry.Coordinates))
			for _, coord := range step.Geometry.Coordinates {
				if node, ok := nodeAt[KeyOf(coord)]; ok {
					nodes = append(nodes, node)
				}
			}
			nodes = dedupConsecutive(nodes)
			if len(nodes) == 0 {
				continue
			}

			group := e.WayNodeIDs[open]
			// a group running on into the next leg repeats the nodes around
			// the waypoint, same as the annotations
			if legStart && len(group) > 0 {
				n, _ := overlap(group, nodes)
				group = group[:len(group)-n]
			}
			legStart = false

			for _, node := range nodes {
				if len(group) == 0 || group[len(group)-1] != node {
					group = append(group, node)
				}
			}
			e.WayNodeIDs[open] = group
		}
	}
}

// overlap returns how many trailing nodes of acc are repeated at the head of
// next. connected is false when the first node of next is not in acc at all.
func overlap(acc, next []int64) (n int, connected bool) {
	pos := lastIndex(acc, next[0])
	if pos < 0 {
		return 0, false
	}

	n = len(acc) - pos
	if n <= len(next) && slices.Equal(acc[pos:], next[:n]) {
		return n, true
	}

	return 0, true
}

func dedupConsecutive(nodes []int64) []int64 {
	result := make([]int64, 0, len(nodes))
	for i, node := range nodes {
		if i == 0 || node != nodes[i-1] {
			result = append(result, node)
		}
	}

	return result
}

func lastIndex(nodes []int64, node int64) int {
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i] == node {
			return i
		}
	}

	return -1
}
