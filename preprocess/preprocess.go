package preprocess

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/preprocess/queries"
)

const (
	WaysFile     = "conflator_ways.parquet"
	SegmentsFile = "conflator_segments.parquet"
	TmcFile      = "conflator_tmc_metadata.parquet"
)

// ProcessAll normalises the raw exports found in folder into the parquet
// files read by the create and index commands.
func ProcessAll(folder string) error {
	steps := []struct {
		name  string
		query string
	}{
		{"ways", queries.WayQuery},
		{"segments", queries.SegmentQuery},
		{"tmc metadata", queries.TmcQuery},
	}

	for _, step := range steps {
		if err := process(folder, step.name, step.query); err != nil {
			return err
		}
	}

	return nil
}

func process(folder, name, query string) error {
	log.Infof("Processing data: %s", name)
	start := time.Now()

	query = withDataDir(query, folder)

	db, err := getDuckDB()
	if err != nil {
		return fmt.Errorf("error opening duckdb: %w", err)
	}
	defer db.Close()

	if _, err = db.Exec(query); err != nil {
		return fmt.Errorf("error processing %s: %w", name, err)
	}

	log.Infof("Processed %s in %v", name, time.Since(start))
	return nil
}

func withDataDir(query, folder string) string {
	if folder != "" && !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	return strings.ReplaceAll(query, "%DATADIR%", folder)
}

func getDuckDB() (*sql.DB, error) {
	return sql.Open("duckdb", "")
}
