package queries

// WayQuery flattens the raw OSM way export into the base network layout:
// node ids and tags as text, geometry as WKT.
var WayQuery = `
INSTALL spatial;
LOAD spatial;

COPY (
    SELECT
        id::BIGINT AS id,
        array_to_string(node_ids, ';') AS node_ids,
        to_json(tags)::VARCHAR AS tags,
        ST_AsText(geometry) AS geom
    FROM
        read_parquet('%DATADIR%osm_ways.geoparquet')
    WHERE
        len(node_ids) > 1
    AND
        ST_GeometryType(geometry) = 'LINESTRING'
    ORDER BY id
) TO '%DATADIR%conflator_ways.parquet' (FORMAT 'parquet', COMPRESSION 'zstd');
`
