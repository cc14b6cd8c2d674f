// Package keys defines the object-store key layout shared by all
// stages. Stages communicate only through these well-known prefixes:
//
//	raw/{deviceId}/{tsMs}-{rid}-{idx}.json
//	processed/{deviceId}/date={YYYY-MM-DD}/points.jsonl
//	                                       stays.json  visits.json
//	                                       stays_enriched.json  visits_enriched.json
//	                                       trips.json  geojson.json
//	                                       diary_stub.txt
package keys

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	RawPrefix       = "raw/"
	ProcessedPrefix = "processed/"

	PointsFile         = "points.jsonl"
	StaysFile          = "stays.json"
	VisitsFile         = "visits.json"
	StaysEnrichedFile  = "stays_enriched.json"
	VisitsEnrichedFile = "visits_enriched.json"
	TripsFile          = "trips.json"
	GeoJSONFile        = "geojson.json"
	DiaryStubFile      = "diary_stub.txt"
)

// Raw returns the key of one raw observation object.
func Raw(deviceID string, tsMs int64, rid string, idx int) string {
	return fmt.Sprintf("raw/%s/%d-%s-%d.json", deviceID, tsMs, rid, idx)
}

// DayPrefix returns the processed/ prefix of one (device, UTC-day)
// partition, with a trailing slash.
func DayPrefix(deviceID, day string) string {
	return fmt.Sprintf("processed/%s/date=%s/", deviceID, day)
}

// Points returns the PointSet key of one (device, UTC-day).
func Points(deviceID, day string) string {
	return DayPrefix(deviceID, day) + PointsFile
}

// Parent returns the directory prefix of a key, trailing slash
// included, or "" for a bare name.
func Parent(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return ""
	}
	return key[:i+1]
}

// Sibling returns a key next to the given one.
func Sibling(key, name string) string {
	return Parent(key) + name
}

// Clean normalizes a key taken from a store event: URL-decodes it,
// strips leading slashes, and collapses duplicate separators. Event
// plumbing percent-encodes keys and occasionally doubles slashes.
func Clean(key string) string {
	if dec, err := url.QueryUnescape(key); err == nil {
		key = dec
	}
	key = strings.TrimLeft(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}

// IsRaw reports whether the key belongs to the ingest output space.
func IsRaw(key string) bool {
	return strings.HasPrefix(key, RawPrefix)
}

// IsPoints reports whether the key is a merged PointSet.
func IsPoints(key string) bool {
	return strings.HasPrefix(key, ProcessedPrefix) && strings.HasSuffix(key, PointsFile)
}

// IsStays reports whether the key is a raw stays collection.
func IsStays(key string) bool {
	return strings.HasPrefix(key, ProcessedPrefix) && strings.HasSuffix(key, "/"+StaysFile)
}

// IsVisits reports whether the key is a raw visits collection.
func IsVisits(key string) bool {
	return strings.HasPrefix(key, ProcessedPrefix) && strings.HasSuffix(key, "/"+VisitsFile)
}

// IsStaysEnriched reports whether the key is an enriched stays
// collection, the trips stage trigger.
func IsStaysEnriched(key string) bool {
	return strings.HasPrefix(key, ProcessedPrefix) && strings.HasSuffix(key, StaysEnrichedFile)
}
