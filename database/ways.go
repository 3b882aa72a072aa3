package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/conflation"
	"github.com/tebben/conflator/mapversion"
	"github.com/tebben/conflator/route"
)

// WayStore reads the base network, the conflation map segments and the
// traffic code metadata from PostGIS.
type WayStore struct {
	pool      *pgxpool.Pool
	revisions gcache.Cache
	cacheTTL  time.Duration
}

// NewWayStore creates a store querying pool, which stays owned by the
// caller. Resolved base map revisions are cached for cacheTTL, zero disables
// the cache.
func NewWayStore(pool *pgxpool.Pool, cacheTTL time.Duration) *WayStore {
	return &WayStore{
		pool:      pool,
		revisions: gcache.New(64).LRU().Build(),
		cacheTTL:  cacheTTL,
	}
}

func (s *WayStore) BaseRevision(ctx context.Context, version mapversion.Version) (string, error) {
	if cached, err := s.revisions.Get(version.Raw); err == nil {
		return cached.(string), nil
	}

	var revision string
	err := s.pool.QueryRow(ctx, `
		SELECT osm_map_version::TEXT
			FROM conflation.conflation_map_osm_version
			WHERE conflation_map_version = $1
	`, version.Raw).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s is not registered", mapversion.ErrUnsupportedVersion, version)
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolving base map revision: %w", conflation.ErrSpatialQuery, err)
	}

	if s.cacheTTL > 0 {
		if err := s.revisions.SetWithExpire(version.Raw, revision, s.cacheTTL); err != nil {
			log.Warnf("Unable to cache base map revision of %s: %v", version, err)
		}
	}

	return revision, nil
}

// waysAlongQuery selects every roadway intersecting the buffered route with
// all its conflation map segments. Subdividing the buffer keeps the index
// lookups on small polygons.
func waysAlongQuery(version mapversion.Version, revision string) string {
	return fmt.Sprintf(`
		WITH buffer AS (
			SELECT
				ST_Subdivide(
					ST_Buffer(
						ST_SetSRID(ST_GeomFromGeoJSON($1), 4326),
						$2,
						'endcap=round join=round'
					)
				) AS wkb_geometry
		), ways AS (
			SELECT DISTINCT ON (a.id)
					a.id,
					a.node_ids
				FROM %s AS a
					INNER JOIN buffer AS b
						ON ST_Intersects(a.wkb_geometry, b.wkb_geometry)
				WHERE osm.osm_way_is_roadway(a.tags)
		)
		SELECT
				w.id,
				w.node_ids,
				c.id,
				c.osm_fwd,
				c.tmc,
				n.node_ids
			FROM ways AS w
				LEFT JOIN %s AS c
					ON c.osm = w.id
				LEFT JOIN %s AS n
					ON n.id = c.id
			ORDER BY w.id, c.id
	`,
		pgx.Identifier{"osm", mapversion.BaseWaysTable(revision)}.Sanitize(),
		pgx.Identifier{"conflation", version.SegmentTable()}.Sanitize(),
		pgx.Identifier{"conflation", version.SegmentNodesTable()}.Sanitize(),
	)
}

func (s *WayStore) WaysAlong(ctx context.Context, version mapversion.Version, revision string, geometry orb.LineString, buffer float64) ([]conflation.BaseWay, error) {
	geom, err := geojson.NewGeometry(geometry).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: encoding route geometry: %w", conflation.ErrSpatialQuery, err)
	}

	rows, err := s.pool.Query(ctx, waysAlongQuery(version, revision), string(geom), buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
	}
	defer rows.Close()

	var scanned []wayRow
	for rows.Next() {
		var row wayRow
		if err := rows.Scan(&row.wayID, &row.wayNodes, &row.segmentID, &row.forward, &row.tmc, &row.segmentNodes); err != nil {
			return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
	}

	return groupWayRows(scanned), nil
}

// wayRow is one row of the ways along query. The segment columns are NULL
// for a way without conflation map segments.
type wayRow struct {
	wayID        int64
	wayNodes     []int64
	segmentID    *int64
	forward      *int32
	tmc          *string
	segmentNodes []int64
}

// groupWayRows folds rows ordered by way into base ways, keeping the row
// order of the segments.
func groupWayRows(rows []wayRow) []conflation.BaseWay {
	var ways []conflation.BaseWay
	for _, row := range rows {
		if n := len(ways); n == 0 || ways[n-1].ID != row.wayID {
			ways = append(ways, conflation.BaseWay{ID: row.wayID, NodeIDs: row.wayNodes})
		}
		if row.segmentID == nil {
			continue
		}

		last := &ways[len(ways)-1]
		last.Segments = append(last.Segments, newSegment(row.wayID, *row.segmentID, row.forward, row.tmc, row.segmentNodes))
	}
	return ways
}

func newSegment(wayID, id int64, forward *int32, tmc *string, nodes []int64) conflation.MapSegment {
	segment := conflation.MapSegment{
		ID:        id,
		WayID:     wayID,
		Direction: conflation.Forward,
		NodeIDs:   nodes,
	}
	if forward != nil && *forward == 0 {
		segment.Direction = conflation.Backward
	}
	if tmc != nil {
		segment.Tmc = *tmc
	}
	return segment
}

func (s *WayStore) TmcEndpoints(ctx context.Context, version mapversion.Version, tmcs []string) (map[string]conflation.TmcEndpoints, error) {
	endpoints := make(map[string]conflation.TmcEndpoints, len(tmcs))
	if len(tmcs) == 0 {
		return endpoints, nil
	}

	query := fmt.Sprintf(`
		SELECT
				tmc,
				start_longitude,
				start_latitude,
				end_longitude,
				end_latitude
			FROM %s
			WHERE tmc = ANY($1)
	`, pgx.Identifier{"conflation", version.TmcMetadataTable()}.Sanitize())

	rows, err := s.pool.Query(ctx, query, tmcs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tmc                string
			startLon, startLat float64
			endLon, endLat     float64
		)
		if err := rows.Scan(&tmc, &startLon, &startLat, &endLon, &endLat); err != nil {
			return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
		}
		endpoints[tmc] = conflation.TmcEndpoints{
			Start: route.NewCoordKey(startLon, startLat),
			End:   route.NewCoordKey(endLon, endLat),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
	}

	return endpoints, nil
}

// Versions lists the registered conflation map versions.
func (s *WayStore) Versions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conflation_map_version
			FROM conflation.conflation_map_osm_version
			ORDER BY conflation_map_version
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
	}

	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", conflation.ErrSpatialQuery, err)
	}
	return versions, nil
}
