package routing

import "github.com/paulmach/orb"

// Location is a waypoint supplied by the client.
type Location struct {
	Lon float64 `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude in WGS84"`
	Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude in WGS84"`
}

// Request holds the waypoints and the optional OSRM tuning parameters.
type Request struct {
	Locations        []Location
	Radius           *float64
	Snapping         *string
	ContinueStraight *bool
}

type Response struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []Route `json:"routes"`
}

type MatchResponse struct {
	Code      string  `json:"code"`
	Message   string  `json:"message,omitempty"`
	Matchings []Route `json:"matchings"`
}

type Route struct {
	Legs     []Leg    `json:"legs"`
	Geometry Geometry `json:"geometry"`
}

type Leg struct {
	Annotation Annotation `json:"annotation"`
	Steps      []Step     `json:"steps"`
}

type Annotation struct {
	Nodes []int64 `json:"nodes"`
}

type Step struct {
	Name     string   `json:"name"`
	Geometry Geometry `json:"geometry"`
}

// Geometry is a GeoJSON LineString as returned with geometries=geojson.
type Geometry struct {
	Type        string         `json:"type"`
	Coordinates orb.LineString `json:"coordinates"`
}
