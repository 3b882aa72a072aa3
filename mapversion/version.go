package mapversion

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnsupportedVersion is returned when a conflation map version is unknown
// to the routing servers or to the version registry.
var ErrUnsupportedVersion = errors.New("unsupported conflation map version")

var versionPattern = regexp.MustCompile(`^(\d{4})_(v\d+(?:_\d+)*)$`)

// Version is a parsed conflation map version such as 2022_v0_6_0.
type Version struct {
	Raw      string
	Year     string
	Platform string
}

// Parse splits a version string into its year and platform version parts.
func Parse(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q does not match <year>_v<platform-version>", ErrUnsupportedVersion, s)
	}

	return Version{Raw: s, Year: m[1], Platform: m[2]}, nil
}

func (v Version) String() string {
	return v.Raw
}

// SegmentTable is the curated segment table of this version.
func (v Version) SegmentTable() string {
	return fmt.Sprintf("conflation_map_%s", v.Raw)
}

// SegmentNodesTable holds the node chain of every curated segment.
func (v Version) SegmentNodesTable() string {
	return fmt.Sprintf("conflation_map_%s_ways_%s", v.Year, v.Platform)
}

// TmcMetadataTable is selected by the year prefix only.
func (v Version) TmcMetadataTable() string {
	return fmt.Sprintf("tmc_metadata_%s", v.Year)
}

// BaseWaysTable is the base road network table for a base-map revision.
func BaseWaysTable(revision string) string {
	return fmt.Sprintf("osm_ways_v%s", revision)
}
