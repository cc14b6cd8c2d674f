// Package model contains the canonical records flowing through the
// location-diary pipeline. Every stage consumes and produces these; the
// JSON field names are the on-store wire format and must not drift.
package model

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Point ──────────────────────────────────────────────────

// Point is one normalized observation inside a per-day PointSet.
// Ts is an ISO-8601 UTC instant with a trailing Z at second precision,
// so lexicographic order equals chronological order.
type Point struct {
	DeviceID string  `json:"deviceId"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Ts       string  `json:"ts"`
}

// RawRecord is the body of a raw/ object written by the ingest stage.
type RawRecord struct {
	DeviceID  string  `json:"deviceId"`
	Timestamp int64   `json:"timestamp"` // ms since epoch, UTC
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// ─── Segments ───────────────────────────────────────────────

// Segment is a dwell period: a contiguous run of points that stayed
// within a fixed radius for at least a minimum duration. Stays and
// visits share this shape and differ only in thresholds.
type Segment struct {
	Center Location `json:"center"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
}

// PlaceInfo carries the recognized reverse-geocode components.
// The key set is closed; absent components are omitted.
type PlaceInfo struct {
	Country      string `json:"country,omitempty"`
	Region       string `json:"region,omitempty"`
	SubRegion    string `json:"subregion,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Street       string `json:"street,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Empty reports whether no component is set.
func (p PlaceInfo) Empty() bool {
	return p == PlaceInfo{}
}

// ─── Trips ──────────────────────────────────────────────────

// TripEndpoint is one end of a trip. Label is the enriched address of
// the stay at that end, null when enrichment produced none.
type TripEndpoint struct {
	Time  string  `json:"time"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label *string `json:"label"`
}

// Trip is a journey between two temporally adjacent stays on the same
// UTC day. DistanceKm is null when neither the router nor haversine
// could produce a number. Fallback is true when only straight-line
// geometry was available.
type Trip struct {
	From       TripEndpoint `json:"from"`
	To         TripEndpoint `json:"to"`
	DistanceKm *float64     `json:"distance_km"`
	Fallback   bool         `json:"fallback"`
}

// ─── GeoJSON ────────────────────────────────────────────────

// LineString is a GeoJSON LineString geometry; coordinates are
// [lon, lat] pairs in travel order.
type LineString struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// TripProperties mirrors the Trip record on the rendered feature.
type TripProperties struct {
	Type       string   `json:"type"`
	FromTime   string   `json:"from_time"`
	ToTime     string   `json:"to_time"`
	FromLabel  *string  `json:"from_label"`
	ToLabel    *string  `json:"to_label"`
	DistanceKm *float64 `json:"distance_km"`
	Fallback   bool     `json:"fallback"`
}

// Feature is a GeoJSON Feature wrapping one trip polyline.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   LineString     `json:"geometry"`
	Properties TripProperties `json:"properties"`
}

// FeatureCollection is the geojson.json top-level object.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection with a non-nil
// feature slice so it serializes as [] rather than null.
func NewFeatureCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}
