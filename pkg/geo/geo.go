// Package geo provides geographic utility functions for the
// location-diary pipeline.
//
// All distance calculations use the Haversine formula on WGS-84
// coordinates. Two Earth-radius constants are in play on purpose: the
// dwell detector measures in meters with the round 6 371 000 m radius,
// while trip distances are reported in kilometers with the IERS mean
// radius 6 371.0088 km. Both are kept so historical outputs stay
// byte-comparable.
package geo

import (
	"math"

	"github.com/shiva/dayline/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// DwellEarthRadiusM is the Earth radius used by dwell detection.
	DwellEarthRadiusM = 6_371_000.0

	// TripEarthRadiusKm is the Earth radius used for trip distances.
	TripEarthRadiusKm = 6371.0088
)

// ─── Distance ───────────────────────────────────────────────

// HaversineM returns the great-circle distance between two points in
// meters, using DwellEarthRadiusM.
//
// Complexity: O(1)
func HaversineM(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * DwellEarthRadiusM * math.Asin(math.Sqrt(h))
}

// HaversineKm returns the great-circle distance between two points in
// kilometers, using TripEarthRadiusKm and the atan2 form.
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return TripEarthRadiusKm * c
}

// ─── Window statistics ──────────────────────────────────────

// Centroid returns the arithmetic mean of the window's coordinates.
// The window must be non-empty.
//
// Complexity: O(N)
func Centroid(points []model.Point) model.Location {
	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}
	n := float64(len(points))
	return model.Location{Lat: sumLat / n, Lon: sumLon / n}
}

// MaxRadiusM returns the largest distance in meters from the centroid
// to any point of the window.
//
// Complexity: O(N)
func MaxRadiusM(center model.Location, points []model.Point) float64 {
	maxR := 0.0
	for _, p := range points {
		if d := HaversineM(center, model.Location{Lat: p.Lat, Lon: p.Lon}); d > maxR {
			maxR = d
		}
	}
	return maxR
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
