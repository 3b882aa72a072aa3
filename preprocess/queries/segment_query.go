package queries

// SegmentQuery keeps the conflation map segments that carry a node chain.
// The direction is normalised to 1 for forward and 0 for backward.
var SegmentQuery = `
COPY (
    SELECT
        id::BIGINT AS id,
        osm::BIGINT AS osm,
        CASE WHEN osm_fwd::INTEGER = 0 THEN 0 ELSE 1 END AS osm_fwd,
        NULLIF(trim(tmc), '') AS tmc,
        array_to_string(node_ids, ';') AS node_ids
    FROM
        read_parquet('%DATADIR%conflation_map.parquet')
    WHERE
        len(node_ids) > 1
    ORDER BY id
) TO '%DATADIR%conflator_segments.parquet' (FORMAT 'parquet', COMPRESSION 'zstd');
`
