package queries

// TmcQuery reads the TMC identification export. A code listed more than
// once keeps its first row.
var TmcQuery = `
COPY (
    SELECT
        tmc,
        ANY_VALUE(start_longitude)::DOUBLE AS start_longitude,
        ANY_VALUE(start_latitude)::DOUBLE AS start_latitude,
        ANY_VALUE(end_longitude)::DOUBLE AS end_longitude,
        ANY_VALUE(end_latitude)::DOUBLE AS end_latitude
    FROM
        read_csv_auto('%DATADIR%tmc_identification.csv', header = true)
    WHERE
        tmc IS NOT NULL
    GROUP BY tmc
    ORDER BY tmc
) TO '%DATADIR%conflator_tmc_metadata.parquet' (FORMAT 'parquet', COMPRESSION 'zstd');
`
