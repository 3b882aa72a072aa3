package conflation

import (
	"errors"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// SortSegments orders the segments of one way and direction head to tail.
// When they do not form an acyclic chain the storage order is returned
// together with the kind of anomaly; the order is then only approximate but
// the error stays bounded to this way.
func SortSegments(segments []MapSegment) ([]MapSegment, *AnomalyKind) {
	if len(segments) <= 1 {
		return segments, nil
	}

	g := simple.NewDirectedGraph()
	byEdge := make(map[[2]int64]MapSegment, len(segments))

	for _, s := range segments {
		head, terminal := s.Head(), s.Terminal()
		if head == terminal {
			// a closed loop segment can not be placed in a chain
			return fallback(segments, AnomalyCyclic)
		}

		edge := [2]int64{head, terminal}
		if _, ok := byEdge[edge]; ok {
			return fallback(segments, AnomalyUnchained)
		}
		byEdge[edge] = s

		g.SetEdge(g.NewEdge(simple.Node(head), simple.Node(terminal)))
	}

	sorted, err := topo.Sort(g)
	if err != nil {
		var unorderable topo.Unorderable
		if errors.As(err, &unorderable) {
			return fallback(segments, AnomalyCyclic)
		}
		return fallback(segments, AnomalyUnchained)
	}

	chain := make([]MapSegment, 0, len(segments))
	for i := 1; i < len(sorted); i++ {
		s, ok := byEdge[[2]int64{sorted[i-1].ID(), sorted[i].ID()}]
		if !ok {
			return fallback(segments, AnomalyUnchained)
		}
		chain = append(chain, s)
	}

	if len(chain) != len(segments) {
		return fallback(segments, AnomalyUnchained)
	}

	return chain, nil
}

func fallback(segments []MapSegment, kind AnomalyKind) ([]MapSegment, *AnomalyKind) {
	ordered := make([]MapSegment, len(segments))
	copy(ordered, segments)
	return ordered, &kind
}
