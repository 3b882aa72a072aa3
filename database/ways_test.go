package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebben/conflator/conflation"
	"github.com/tebben/conflator/mapversion"
)

func TestWaysAlongQueryTables(t *testing.T) {
	version, err := mapversion.Parse("2022_v0_6_0")
	require.NoError(t, err)

	query := waysAlongQuery(version, "211004")

	assert.Contains(t, query, `"osm"."osm_ways_v211004"`)
	assert.Contains(t, query, `"conflation"."conflation_map_2022_v0_6_0"`)
	assert.Contains(t, query, `"conflation"."conflation_map_2022_ways_v0_6_0"`)
	assert.Contains(t, query, "osm.osm_way_is_roadway(a.tags)")
}

func TestNewSegment(t *testing.T) {
	fwd, bwd := int32(1), int32(0)
	tmc := "120+05843"

	forward := newSegment(100, 1, &fwd, &tmc, []int64{1, 2})
	assert.Equal(t, conflation.MapSegment{ID: 1, WayID: 100, Direction: conflation.Forward, NodeIDs: []int64{1, 2}, Tmc: tmc}, forward)

	backward := newSegment(100, 2, &bwd, nil, []int64{2, 1})
	assert.Equal(t, conflation.Backward, backward.Direction)
	assert.Empty(t, backward.Tmc)
}

func TestGroupWayRows(t *testing.T) {
	id := func(v int64) *int64 { return &v }
	fwd, bwd := int32(1), int32(0)
	tmc := "120+05843"

	tests := []struct {
		name string
		rows []wayRow
		want []conflation.BaseWay
	}{
		{
			name: "no rows",
			rows: nil,
			want: nil,
		},
		{
			name: "several segments per way",
			rows: []wayRow{
				{wayID: 100, wayNodes: []int64{1, 2, 3}, segmentID: id(1001), forward: &fwd, tmc: &tmc, segmentNodes: []int64{1, 2}},
				{wayID: 100, wayNodes: []int64{1, 2, 3}, segmentID: id(1002), forward: &fwd, tmc: &tmc, segmentNodes: []int64{2, 3}},
				{wayID: 100, wayNodes: []int64{1, 2, 3}, segmentID: id(1101), forward: &bwd, segmentNodes: []int64{3, 2, 1}},
			},
			want: []conflation.BaseWay{{
				ID:      100,
				NodeIDs: []int64{1, 2, 3},
				Segments: []conflation.MapSegment{
					{ID: 1001, WayID: 100, Direction: conflation.Forward, NodeIDs: []int64{1, 2}, Tmc: tmc},
					{ID: 1002, WayID: 100, Direction: conflation.Forward, NodeIDs: []int64{2, 3}, Tmc: tmc},
					{ID: 1101, WayID: 100, Direction: conflation.Backward, NodeIDs: []int64{3, 2, 1}},
				},
			}},
		},
		{
			name: "way without segments",
			rows: []wayRow{
				{wayID: 300, wayNodes: []int64{7, 8}},
			},
			want: []conflation.BaseWay{{ID: 300, NodeIDs: []int64{7, 8}}},
		},
		{
			name: "consecutive ways",
			rows: []wayRow{
				{wayID: 100, wayNodes: []int64{1, 2}, segmentID: id(1001), forward: &fwd, segmentNodes: []int64{1, 2}},
				{wayID: 200, wayNodes: []int64{2, 5}},
				{wayID: 300, wayNodes: []int64{5, 6}, segmentID: id(3001), forward: &fwd, segmentNodes: []int64{5, 6}},
				{wayID: 300, wayNodes: []int64{5, 6}, segmentID: id(3101), forward: &bwd, segmentNodes: []int64{6, 5}},
			},
			want: []conflation.BaseWay{
				{
					ID:       100,
					NodeIDs:  []int64{1, 2},
					Segments: []conflation.MapSegment{{ID: 1001, WayID: 100, Direction: conflation.Forward, NodeIDs: []int64{1, 2}}},
				},
				{ID: 200, NodeIDs: []int64{2, 5}},
				{
					ID:      300,
					NodeIDs: []int64{5, 6},
					Segments: []conflation.MapSegment{
						{ID: 3001, WayID: 300, Direction: conflation.Forward, NodeIDs: []int64{5, 6}},
						{ID: 3101, WayID: 300, Direction: conflation.Backward, NodeIDs: []int64{6, 5}},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, groupWayRows(tt.rows))
		})
	}
}
