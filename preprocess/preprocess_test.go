package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tebben/conflator/preprocess/queries"
)

func TestWithDataDir(t *testing.T) {
	assert.Equal(t, "read_parquet('../data/osm_ways.geoparquet')", withDataDir("read_parquet('%DATADIR%osm_ways.geoparquet')", "../data"))
	assert.Equal(t, "read_parquet('../data/osm_ways.geoparquet')", withDataDir("read_parquet('%DATADIR%osm_ways.geoparquet')", "../data/"))
}

func TestQueriesWriteProcessedFiles(t *testing.T) {
	assert.Contains(t, queries.WayQuery, "%DATADIR%"+WaysFile)
	assert.Contains(t, queries.SegmentQuery, "%DATADIR%"+SegmentsFile)
	assert.Contains(t, queries.TmcQuery, "%DATADIR%"+TmcFile)
}
