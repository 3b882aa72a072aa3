package database

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/mapversion"
	"github.com/tebben/conflator/preprocess"
	"github.com/tebben/conflator/settings"
	"golang.org/x/sync/errgroup"
)

const batchSize = 1000

var revisionPattern = regexp.MustCompile(`^[0-9A-Za-z_]+$`)

// roadwayFunction decides which ways are drivable. It only looks at the
// highway tag of the way.
const roadwayFunction = `
	CREATE OR REPLACE FUNCTION osm.osm_way_is_roadway(tags JSONB)
		RETURNS BOOLEAN
		LANGUAGE SQL
		IMMUTABLE
	AS $$
		SELECT COALESCE(tags->>'highway', '') IN (
			'motorway', 'motorway_link',
			'trunk', 'trunk_link',
			'primary', 'primary_link',
			'secondary', 'secondary_link',
			'tertiary', 'tertiary_link',
			'unclassified', 'residential', 'living_street',
			'service', 'road'
		)
	$$;
`

// Tables are the PostGIS tables serving one conflation map version.
type Tables struct {
	Ways         pgx.Identifier
	Segments     pgx.Identifier
	SegmentNodes pgx.Identifier
	TmcMetadata  pgx.Identifier
}

func TablesFor(version mapversion.Version, revision string) Tables {
	return Tables{
		Ways:         pgx.Identifier{"osm", mapversion.BaseWaysTable(revision)},
		Segments:     pgx.Identifier{"conflation", version.SegmentTable()},
		SegmentNodes: pgx.Identifier{"conflation", version.SegmentNodesTable()},
		TmcMetadata:  pgx.Identifier{"conflation", version.TmcMetadataTable()},
	}
}

// PoolName names the registry pool used while loading.
const PoolName = "conflator"

// CreateDB loads the processed files in folder into PostGIS and registers
// version as conflation of the base map revision. Loading is idempotent, rows
// already present are updated.
func CreateDB(ctx context.Context, config settings.DatabaseConfig, folder string, version mapversion.Version, revision string) error {
	if !revisionPattern.MatchString(revision) {
		return fmt.Errorf("invalid base map revision %q", revision)
	}

	pool, err := GetDBPool(PoolName, config)
	if err != nil {
		return err
	}
	defer ReleaseDBPool(PoolName)

	tables := TablesFor(version, revision)

	log.Info("Creating tables")
	if err := createTables(ctx, pool, tables); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	steps := []struct {
		file string
		load func(context.Context, *pgxpool.Pool, Tables, string) error
	}{
		{preprocess.WaysFile, loadWays},
		{preprocess.SegmentsFile, loadSegments},
		{preprocess.TmcFile, loadTmcMetadata},
	}
	for _, step := range steps {
		start := time.Now()
		path := filepath.Join(folder, step.file)
		if err := step.load(ctx, pool, tables, path); err != nil {
			return err
		}
		log.Infof("Processed %s in %v", path, time.Since(start))
	}

	if err := registerVersion(ctx, pool, version, revision); err != nil {
		return fmt.Errorf("failed to register %s: %w", version, err)
	}

	log.Info("Analyzing tables")
	return analyze(ctx, pool, tables)
}

func createTables(ctx context.Context, pool *pgxpool.Pool, t Tables) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS postgis;
		CREATE SCHEMA IF NOT EXISTS osm;
		CREATE SCHEMA IF NOT EXISTS conflation;

		%[1]s

		CREATE TABLE IF NOT EXISTS %[2]s (
			id BIGINT PRIMARY KEY,
			node_ids BIGINT[] NOT NULL,
			tags JSONB,
			wkb_geometry geometry(LineString, 4326) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[3]s ON %[2]s USING GIST (wkb_geometry);

		CREATE TABLE IF NOT EXISTS %[4]s (
			id BIGINT PRIMARY KEY,
			osm BIGINT NOT NULL,
			osm_fwd INTEGER NOT NULL,
			tmc TEXT
		);
		CREATE INDEX IF NOT EXISTS %[5]s ON %[4]s (osm);

		CREATE TABLE IF NOT EXISTS %[6]s (
			id BIGINT PRIMARY KEY,
			node_ids BIGINT[] NOT NULL
		);

		CREATE TABLE IF NOT EXISTS %[7]s (
			tmc TEXT PRIMARY KEY,
			start_longitude DOUBLE PRECISION NOT NULL,
			start_latitude DOUBLE PRECISION NOT NULL,
			end_longitude DOUBLE PRECISION NOT NULL,
			end_latitude DOUBLE PRECISION NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conflation.conflation_map_osm_version (
			conflation_map_version TEXT PRIMARY KEY,
			osm_map_version TEXT NOT NULL
		);
	`,
		roadwayFunction,
		t.Ways.Sanitize(),
		pgx.Identifier{t.Ways[1] + "_geom_idx"}.Sanitize(),
		t.Segments.Sanitize(),
		pgx.Identifier{t.Segments[1] + "_osm_idx"}.Sanitize(),
		t.SegmentNodes.Sanitize(),
		t.TmcMetadata.Sanitize(),
	)

	_, err := pool.Exec(ctx, query)
	return err
}

// loadBatches runs insert for every batch of the file, a few batches at a
// time, each batch in its own transaction.
func loadBatches[T any](ctx context.Context, pool *pgxpool.Pool, path string, insert func(*pgx.Batch, T) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	err := ReadParquet(path, batchSize, func(rows []T) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			if err := insert(batch, row); err != nil {
				return err
			}
		}

		if batch.Len() == 0 {
			return ctx.Err()
		}

		g.Go(func() error {
			return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
				return tx.SendBatch(ctx, batch).Close()
			})
		})

		return ctx.Err()
	})
	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}

func loadWays(ctx context.Context, pool *pgxpool.Pool, t Tables, path string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, node_ids, tags, wkb_geometry)
			VALUES ($1, $2, $3::JSONB, ST_SetSRID(ST_GeomFromText($4), 4326))
			ON CONFLICT (id) DO UPDATE SET
				node_ids = EXCLUDED.node_ids,
				tags = EXCLUDED.tags,
				wkb_geometry = EXCLUDED.wkb_geometry
	`, t.Ways.Sanitize())

	return loadBatches(ctx, pool, path, func(b *pgx.Batch, rec WayRecord) error {
		nodes, err := ParseNodeIDs(deref(rec.NodeIDs))
		if err != nil {
			return fmt.Errorf("way %d: %w", deref(rec.ID), err)
		}
		if rec.ID == nil || len(nodes) < 2 || rec.Geom == nil {
			return nil
		}

		b.Queue(query, *rec.ID, nodes, rec.Tags, *rec.Geom)
		return nil
	})
}

func loadSegments(ctx context.Context, pool *pgxpool.Pool, t Tables, path string) error {
	segmentQuery := fmt.Sprintf(`
		INSERT INTO %s (id, osm, osm_fwd, tmc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				osm = EXCLUDED.osm,
				osm_fwd = EXCLUDED.osm_fwd,
				tmc = EXCLUDED.tmc
	`, t.Segments.Sanitize())
	nodesQuery := fmt.Sprintf(`
		INSERT INTO %s (id, node_ids)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET node_ids = EXCLUDED.node_ids
	`, t.SegmentNodes.Sanitize())

	return loadBatches(ctx, pool, path, func(b *pgx.Batch, rec SegmentRecord) error {
		nodes, err := ParseNodeIDs(deref(rec.NodeIDs))
		if err != nil {
			return fmt.Errorf("segment %d: %w", deref(rec.ID), err)
		}
		if rec.ID == nil || rec.Osm == nil || len(nodes) < 2 {
			return nil
		}

		b.Queue(segmentQuery, *rec.ID, *rec.Osm, deref(rec.OsmFwd), rec.Tmc)
		b.Queue(nodesQuery, *rec.ID, nodes)
		return nil
	})
}

func loadTmcMetadata(ctx context.Context, pool *pgxpool.Pool, t Tables, path string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (tmc, start_longitude, start_latitude, end_longitude, end_latitude)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tmc) DO UPDATE SET
				start_longitude = EXCLUDED.start_longitude,
				start_latitude = EXCLUDED.start_latitude,
				end_longitude = EXCLUDED.end_longitude,
				end_latitude = EXCLUDED.end_latitude
	`, t.TmcMetadata.Sanitize())

	return loadBatches(ctx, pool, path, func(b *pgx.Batch, rec TmcRecord) error {
		if rec.Tmc == nil || rec.StartLongitude == nil || rec.StartLatitude == nil || rec.EndLongitude == nil || rec.EndLatitude == nil {
			return nil
		}

		b.Queue(query, *rec.Tmc, *rec.StartLongitude, *rec.StartLatitude, *rec.EndLongitude, *rec.EndLatitude)
		return nil
	})
}

func registerVersion(ctx context.Context, pool *pgxpool.Pool, version mapversion.Version, revision string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO conflation.conflation_map_osm_version (conflation_map_version, osm_map_version)
			VALUES ($1, $2)
			ON CONFLICT (conflation_map_version) DO UPDATE SET osm_map_version = EXCLUDED.osm_map_version
	`, version.Raw, revision)
	return err
}

func analyze(ctx context.Context, pool *pgxpool.Pool, t Tables) error {
	for _, table := range []pgx.Identifier{t.Ways, t.Segments, t.SegmentNodes, t.TmcMetadata} {
		if _, err := pool.Exec(ctx, "ANALYZE "+table.Sanitize()); err != nil {
			return fmt.Errorf("failed to analyze table %s: %w", table.Sanitize(), err)
		}
	}
	return nil
}
