package conflation

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebben/conflator/mapversion"
	"github.com/tebben/conflator/route"
	"github.com/tebben/conflator/routing"
)

type fakeRouter struct {
	routes map[int]*routing.Route
	err    error
}

func (f *fakeRouter) Route(_ context.Context, _ string, req routing.Request) (*routing.Route, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.routes[len(req.Locations)], nil
}

type fakeStore struct {
	ways      []BaseWay
	endpoints map[string]TmcEndpoints
	err       error

	revisionCalls int
	buffer        float64
	requested     []string
}

func (f *fakeStore) BaseRevision(_ context.Context, _ mapversion.Version) (string, error) {
	f.revisionCalls++
	return "20220101", f.err
}

func (f *fakeStore) WaysAlong(_ context.Context, _ mapversion.Version, _ string, _ orb.LineString, buffer float64) ([]BaseWay, error) {
	f.buffer = buffer
	return f.ways, f.err
}

func (f *fakeStore) TmcEndpoints(_ context.Context, _ mapversion.Version, tmcs []string) (map[string]TmcEndpoints, error) {
	f.requested = tmcs
	return f.endpoints, f.err
}

func point(node int64) orb.Point {
	return orb.Point{-73.8 + float64(node)*0.001, 42.6 + float64(node)*0.001}
}

func coords(nodes ...int64) routing.Geometry {
	ls := make(orb.LineString, len(nodes))
	for i, n := range nodes {
		ls[i] = point(n)
	}
	return routing.Geometry{Type: "LineString", Coordinates: ls}
}

func routeStep(name string, nodes ...int64) routing.Step {
	return routing.Step{Name: name, Geometry: coords(nodes...)}
}

// Central Avenue (way 100) runs over nodes 1-4, Fuller Road (way 200) over
// 4-6. The forward segments of way 100 are stored out of order.
func centralAndFuller() *fakeStore {
	return &fakeStore{
		ways: []BaseWay{
			{
				ID:      100,
				NodeIDs: []int64{1, 2, 3, 4},
				Segments: []MapSegment{
					{ID: 1002, WayID: 100, Direction: Forward, NodeIDs: []int64{3, 4}, Tmc: "120+05843"},
					{ID: 1001, WayID: 100, Direction: Forward, NodeIDs: []int64{1, 2, 3}, Tmc: "120+05843"},
					{ID: 1101, WayID: 100, Direction: Backward, NodeIDs: []int64{4, 3}, Tmc: "120-05843"},
					{ID: 1102, WayID: 100, Direction: Backward, NodeIDs: []int64{3, 2, 1}, Tmc: "120-05843"},
				},
			},
			{
				ID:      200,
				NodeIDs: []int64{4, 5, 6},
				Segments: []MapSegment{
					{ID: 2001, WayID: 200, Direction: Forward, NodeIDs: []int64{4, 5, 6}, Tmc: "120P05843"},
					{ID: 2101, WayID: 200, Direction: Backward, NodeIDs: []int64{6, 5, 4}, Tmc: "120N05843"},
				},
			},
		},
		endpoints: map[string]TmcEndpoints{
			"120+05843": {Start: route.KeyOf(point(1)), End: route.KeyOf(point(4))},
			"120P05843": {Start: route.KeyOf(point(4)), End: route.KeyOf(point(6))},
		},
	}
}

func centralAndFullerRoutes() map[int]*routing.Route {
	return map[int]*routing.Route{
		2: {
			Geometry: coords(1, 2, 3, 4, 5, 6),
			Legs: []routing.Leg{{
				Annotation: routing.Annotation{Nodes: []int64{1, 2, 3, 4, 5, 6}},
				Steps: []routing.Step{
					routeStep("Central Avenue", 1, 2, 3, 4),
					routeStep("Fuller Road", 4, 5, 6),
					routeStep("Fuller Road", 6),
				},
			}},
		},
		// the middle waypoint lies between nodes 3 and 4
		3: {
			Geometry: coords(1, 2, 3, 4, 5, 6),
			Legs: []routing.Leg{
				{
					Annotation: routing.Annotation{Nodes: []int64{1, 2, 3, 4}},
					Steps:      []routing.Step{routeStep("Central Avenue", 1, 2, 3, 4)},
				},
				{
					Annotation: routing.Annotation{Nodes: []int64{3, 4, 5, 6}},
					Steps: []routing.Step{
						routeStep("Central Avenue", 3, 4),
						routeStep("Fuller Road", 4, 5, 6),
					},
				},
			},
		},
	}
}

func locations(n int) []routing.Location {
	result := make([]routing.Location, n)
	for i := range result {
		result[i] = routing.Location{Lon: -73.8, Lat: 42.6}
	}
	return result
}

func TestResolve(t *testing.T) {
	store := centralAndFuller()
	resolver := NewResolver(&fakeRouter{routes: centralAndFullerRoutes()}, store, Options{Buffer: 0.00001, Workers: 2})

	result, err := resolver.Resolve(context.Background(), Request{
		Version: "2022_v0_6_0",
		Route:   routing.Request{Locations: locations(2)},
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, []int64{1001, 1002, 2001}, result.Ways)
	assert.Nil(t, result.Tmcs)
	assert.Empty(t, result.Diagnostics.Anomalies)
	assert.Equal(t, 0.00001, store.buffer)
	assert.Nil(t, store.requested)
}

func TestResolveTmcs(t *testing.T) {
	store := centralAndFuller()
	resolver := NewResolver(&fakeRouter{routes: centralAndFullerRoutes()}, store, Options{Workers: 1})

	result, err := resolver.Resolve(context.Background(), Request{
		Version:    "2022_v0_6_0",
		Route:      routing.Request{Locations: locations(2)},
		ReturnTmcs: true,
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, []string{"120+05843", "120P05843"}, store.requested)
	assert.Equal(t, []string{"120+05843", "120P05843"}, result.Tmcs)
}

func TestResolveIntermediateWaypointGivesSamePath(t *testing.T) {
	routes := centralAndFullerRoutes()
	resolver := NewResolver(&fakeRouter{routes: routes}, centralAndFuller(), Options{Workers: 4})

	two, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}, ReturnTmcs: true})
	require.NoError(t, err)
	three, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(3)}, ReturnTmcs: true})
	require.NoError(t, err)

	assert.Equal(t, two.Ways, three.Ways)
	assert.Equal(t, two.Tmcs, three.Tmcs)
}

func TestResolveBackwardTraversal(t *testing.T) {
	store := centralAndFuller()
	routes := map[int]*routing.Route{
		2: {
			Geometry: coords(6, 5, 4, 3, 2, 1),
			Legs: []routing.Leg{{
				Annotation: routing.Annotation{Nodes: []int64{6, 5, 4, 3, 2, 1}},
				Steps: []routing.Step{
					routeStep("Fuller Road", 6, 5, 4),
					routeStep("Central Avenue", 4, 3, 2, 1),
				},
			}},
		},
	}
	resolver := NewResolver(&fakeRouter{routes: routes}, store, Options{Workers: 2})

	result, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	require.NoError(t, err)
	assert.Equal(t, []int64{2101, 1101, 1102}, result.Ways)
}

func TestResolveReportsAnomalies(t *testing.T) {
	store := centralAndFuller()
	// a closed loop segment on Fuller Road
	store.ways[1].Segments = append(store.ways[1].Segments, MapSegment{ID: 2002, WayID: 200, Direction: Forward, NodeIDs: []int64{6, 7, 6}})
	resolver := NewResolver(&fakeRouter{routes: centralAndFullerRoutes()}, store, Options{Workers: 2})

	result, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	require.NoError(t, err)
	require.Len(t, result.Diagnostics.Anomalies, 1)
	assert.Equal(t, Anomaly{WayID: 200, Direction: "fwd", Kind: AnomalyCyclic}, result.Diagnostics.Anomalies[0])
	assert.Equal(t, []int64{1001, 1002, 2001}, result.Ways)
}

func TestResolveNoRoute(t *testing.T) {
	store := centralAndFuller()
	resolver := NewResolver(&fakeRouter{}, store, Options{})

	result, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, store.revisionCalls)
}

func TestResolveRouteWithoutNodes(t *testing.T) {
	routes := map[int]*routing.Route{2: {Legs: []routing.Leg{{}}}}
	resolver := NewResolver(&fakeRouter{routes: routes}, centralAndFuller(), Options{})

	result, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestResolveUnsupportedVersion(t *testing.T) {
	resolver := NewResolver(&fakeRouter{routes: centralAndFullerRoutes()}, centralAndFuller(), Options{})

	_, err := resolver.Resolve(context.Background(), Request{Version: "latest", Route: routing.Request{Locations: locations(2)}})

	assert.ErrorIs(t, err, mapversion.ErrUnsupportedVersion)
}

func TestResolveUnregisteredVersion(t *testing.T) {
	store := centralAndFuller()
	store.err = mapversion.ErrUnsupportedVersion
	resolver := NewResolver(&fakeRouter{routes: centralAndFullerRoutes()}, store, Options{})

	_, err := resolver.Resolve(context.Background(), Request{Version: "2019_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	assert.ErrorIs(t, err, mapversion.ErrUnsupportedVersion)
	assert.NotErrorIs(t, err, ErrSpatialQuery)
}

func TestResolveSpatialFailure(t *testing.T) {
	store := centralAndFuller()
	store.err = errors.New("connection refused")
	resolver := NewResolver(&fakeRouter{routes: centralAndFullerRoutes()}, store, Options{})

	_, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	assert.ErrorIs(t, err, ErrSpatialQuery)
	assert.ErrorContains(t, err, "connection refused")
}

func TestResolveRoutingFailure(t *testing.T) {
	resolver := NewResolver(&fakeRouter{err: errors.New("engine down")}, centralAndFuller(), Options{})

	_, err := resolver.Resolve(context.Background(), Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSpatialQuery)
}

func TestResolveIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resolver := NewResolver(&fakeRouter{routes: centralAndFullerRoutes()}, centralAndFuller(), Options{Workers: 2})

	result, err := resolver.Resolve(ctx, Request{Version: "2022_v0_6_0", Route: routing.Request{Locations: locations(2)}})

	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1002, 2001}, result.Ways)
}
