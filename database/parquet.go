package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// WayRecord is a row of the processed base network file.
type WayRecord struct {
	ID      *int64  `parquet:"name=id, type=INT64, repetitiontype=OPTIONAL"`
	NodeIDs *string `parquet:"name=node_ids, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Tags    *string `parquet:"name=tags, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Geom    *string `parquet:"name=geom, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// SegmentRecord is a row of the processed conflation map file.
type SegmentRecord struct {
	ID      *int64  `parquet:"name=id, type=INT64, repetitiontype=OPTIONAL"`
	Osm     *int64  `parquet:"name=osm, type=INT64, repetitiontype=OPTIONAL"`
	OsmFwd  *int32  `parquet:"name=osm_fwd, type=INT32, repetitiontype=OPTIONAL"`
	Tmc     *string `parquet:"name=tmc, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	NodeIDs *string `parquet:"name=node_ids, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// TmcRecord is a row of the processed TMC metadata file.
type TmcRecord struct {
	Tmc            *string  `parquet:"name=tmc, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	StartLongitude *float64 `parquet:"name=start_longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	StartLatitude  *float64 `parquet:"name=start_latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	EndLongitude   *float64 `parquet:"name=end_longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	EndLatitude    *float64 `parquet:"name=end_latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// ReadParquet reads the file at path in batches of batchSize rows and hands
// every batch to fn.
func ReadParquet[T any](path string, batchSize int, fn func([]T) error) error {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	for read := 0; read < total; {
		n := min(batchSize, total-read)
		rows := make([]T, n)
		if err := pr.Read(&rows); err != nil {
			return fmt.Errorf("failed to read records from %s: %w", path, err)
		}

		if err := fn(rows); err != nil {
			return err
		}
		read += n
	}

	return nil
}

// ParseNodeIDs parses a ';' separated list of node ids.
func ParseNodeIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ";")
	ids := make([]int64, len(parts))
	for i, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", p, err)
		}
		ids[i] = id
	}

	return ids, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
