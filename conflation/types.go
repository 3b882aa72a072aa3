// Package conflation re-expresses a routed traversal as an ordered list of
// conflation map segments and, optionally, traffic message channel codes.
package conflation

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	"github.com/tebben/conflator/mapversion"
	"github.com/tebben/conflator/route"
	"github.com/tebben/conflator/routing"
)

// ErrSpatialQuery wraps every failure of the spatial store.
var ErrSpatialQuery = errors.New("spatial query failed")

// Direction is the travel direction of a segment along its base way.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "bwd"
	}
	return "fwd"
}

// MapSegment is a directional sub-segment of a base way. NodeIDs are in
// travel order for the segment's direction.
type MapSegment struct {
	ID        int64
	WayID     int64
	Direction Direction
	NodeIDs   []int64
	Tmc       string
}

// Head returns the first node of the segment in travel order.
func (s MapSegment) Head() int64 {
	return s.NodeIDs[0]
}

// Terminal returns the last node of the segment in travel order.
func (s MapSegment) Terminal() int64 {
	return s.NodeIDs[len(s.NodeIDs)-1]
}

// BaseWay is a way of the base road network together with its segments in
// both directions, in storage order.
type BaseWay struct {
	ID       int64
	NodeIDs  []int64
	Segments []MapSegment
}

// SegmentsFor returns the way's segments of one direction in storage order.
func (w BaseWay) SegmentsFor(d Direction) []MapSegment {
	var result []MapSegment
	for _, s := range w.Segments {
		if s.Direction == d && len(s.NodeIDs) > 0 {
			result = append(result, s)
		}
	}
	return result
}

// TmcEndpoints are the start and end coordinates of a traffic code.
type TmcEndpoints struct {
	Start route.CoordKey
	End   route.CoordKey
}

// WayStore is the spatial store holding the base network and the conflation
// map segments.
type WayStore interface {
	// BaseRevision resolves a conflation map version to the base map
	// revision it was built from.
	BaseRevision(ctx context.Context, version mapversion.Version) (string, error)
	// WaysAlong returns every base way intersecting a buffer around the
	// geometry.
	WaysAlong(ctx context.Context, version mapversion.Version, revision string, geometry orb.LineString, buffer float64) ([]BaseWay, error)
	// TmcEndpoints looks up the endpoints of traffic codes.
	TmcEndpoints(ctx context.Context, version mapversion.Version, tmcs []string) (map[string]TmcEndpoints, error)
}

// Router computes driving routes.
type Router interface {
	Route(ctx context.Context, version string, req routing.Request) (*routing.Route, error)
}

// AnomalyKind names why a way's segments could not be chained.
type AnomalyKind string

const (
	// AnomalyCyclic marks a way whose segments form a cycle, ordered by
	// storage order.
	AnomalyCyclic AnomalyKind = "cyclic"
	// AnomalyUnchained marks a way whose sorted segments do not form a
	// single chain, ordered by storage order.
	AnomalyUnchained AnomalyKind = "unchained"
)

// Anomaly records a way ordered with a fallback.
type Anomaly struct {
	WayID     int64       `json:"wayId"`
	Direction string      `json:"direction"`
	Kind      AnomalyKind `json:"kind"`
}

// Diagnostics are collected per request and never fail it.
type Diagnostics struct {
	Anomalies        []Anomaly `json:"anomalies,omitempty"`
	DisconnectedLegs int       `json:"disconnectedLegs,omitempty"`
	KeyCollisions    int       `json:"keyCollisions,omitempty"`
	UnmatchedEdges   int       `json:"unmatchedEdges,omitempty"`
}
