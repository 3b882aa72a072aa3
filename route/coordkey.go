package route

import (
	"math"

	"github.com/paulmach/orb"
)

// CoordPrecision is the scale applied to lon/lat before rounding, five
// decimals is roughly one meter.
const CoordPrecision = 1e5

// CoordKey is a coordinate rounded to a fixed precision, comparable and
// usable as a map key.
type CoordKey struct {
	Lon int32
	Lat int32
}

// KeyOf returns the key of a point.
func KeyOf(p orb.Point) CoordKey {
	return NewCoordKey(p.Lon(), p.Lat())
}

// NewCoordKey rounds lon and lat to CoordPrecision.
func NewCoordKey(lon, lat float64) CoordKey {
	return CoordKey{
		Lon: int32(math.Round(lon * CoordPrecision)),
		Lat: int32(math.Round(lat * CoordPrecision)),
	}
}
