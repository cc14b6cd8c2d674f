// Package normalize absorbs the shape and unit variance of incoming
// location payloads. Two request shapes exist (single record and
// batch), coordinates arrive under lat/latitude and lon/longitude, and
// timestamps arrive as epoch seconds, epoch milliseconds, or ISO-8601
// strings. Everything downstream consumes only the canonical
// model.Point.
package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DefaultDeviceID is assumed when a payload does not name its device.
const DefaultDeviceID = "web-unknown"

// msThreshold disambiguates epoch seconds from epoch milliseconds:
// anything above 1e12 is milliseconds.
const msThreshold = 1e12

// ─── Payload shapes ─────────────────────────────────────────

// Sample is one entry of a batch payload. Pointer fields distinguish
// absent coordinates from zero ones.
type Sample struct {
	Lat       *float64    `json:"lat"`
	Latitude  *float64    `json:"latitude"`
	Lon       *float64    `json:"lon"`
	Longitude *float64    `json:"longitude"`
	Timestamp interface{} `json:"timestamp"`
}

// Payload is the union of the single and batch request shapes. When
// Locations is present the batch shape wins; otherwise the top-level
// coordinate fields form a single sample.
type Payload struct {
	DeviceID  string      `json:"deviceId"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
	Timestamp interface{} `json:"timestamp"`
	Locations []Sample    `json:"locations"`
}

// Device returns the payload's device id or DefaultDeviceID.
func (p *Payload) Device() string {
	if p.DeviceID == "" {
		return DefaultDeviceID
	}
	return p.DeviceID
}

// ParsePayload decodes a request or raw-object body. Numbers are kept
// as json.Number so second/millisecond epochs survive intact.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := unmarshalUseNumber(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func unmarshalUseNumber(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

// ─── Timestamps ─────────────────────────────────────────────

// ToMillis normalizes a timestamp of any accepted unit to UTC epoch
// milliseconds. Accepted: integer/float seconds, integer/float
// milliseconds (> 1e12), and ISO-8601 strings with a trailing Z or an
// explicit offset. A nil value yields now (live posts often omit the
// field); an undecidable value is rejected, never defaulted.
func ToMillis(ts interface{}, now func() time.Time) (int64, bool) {
	switch v := ts.(type) {
	case nil:
		return now().UnixMilli(), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return numToMillis(f), true
	case float64:
		return numToMillis(v), true
	case int64:
		return numToMillis(float64(v)), true
	case string:
		t, err := parseISO(v)
		if err != nil {
			return 0, false
		}
		return t.UnixMilli(), true
	default:
		return 0, false
	}
}

func numToMillis(f float64) int64 {
	if f > msThreshold {
		return int64(f)
	}
	return int64(f * 1000)
}

// parseISO accepts RFC 3339 with or without fractional seconds.
func parseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// ISOFromMillis renders epoch milliseconds as the canonical ISO-8601
// UTC instant with second precision and a trailing Z.
func ISOFromMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05Z")
}

// EpochToISO renders a numeric epoch of either unit as the canonical
// instant.
func EpochToISO(v float64) string {
	return ISOFromMillis(numToMillis(v))
}

// ISOToDay returns the UTC day (YYYY-MM-DD) of a canonical instant.
func ISOToDay(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}

// NormalizeISO re-normalizes an arbitrary ISO-8601 instant to the
// canonical Z-suffixed second-precision form.
func NormalizeISO(s string) (string, bool) {
	t, err := parseISO(s)
	if err != nil {
		return "", false
	}
	return t.UTC().Format("2006-01-02T15:04:05Z"), true
}

// ─── Records ────────────────────────────────────────────────

// Record is an ingest-normalized observation carrying the raw-object
// millisecond timestamp alongside the coordinates.
type Record struct {
	Lat  float64
	Lon  float64
	TsMs int64
}

// Records extracts the valid observations of a payload in order.
// Samples with missing coordinates or undecidable timestamps are
// dropped; the caller decides whether zero survivors is an error.
func (p *Payload) Records(now func() time.Time) []Record {
	if p.Locations != nil {
		out := make([]Record, 0, len(p.Locations))
		for _, s := range p.Locations {
			lat := firstOf(s.Latitude, s.Lat)
			lon := firstOf(s.Longitude, s.Lon)
			if lat == nil || lon == nil {
				continue
			}
			ms, ok := ToMillis(s.Timestamp, now)
			if !ok {
				continue
			}
			out = append(out, Record{Lat: *lat, Lon: *lon, TsMs: ms})
		}
		return out
	}

	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	ms, ok := ToMillis(p.Timestamp, now)
	if !ok {
		return nil
	}
	return []Record{{Lat: *p.Latitude, Lon: *p.Longitude, TsMs: ms}}
}

// Points extracts canonical per-day points for the merge stage.
// Unlike Records, a sample without a timestamp is dropped rather than
// defaulted: merge replays historical objects, where "now" would
// corrupt the day partition.
func (p *Payload) Points() []Record {
	if p.Locations != nil {
		out := make([]Record, 0, len(p.Locations))
		for _, s := range p.Locations {
			lat := firstOf(s.Lat, s.Latitude)
			lon := firstOf(s.Lon, s.Longitude)
			if lat == nil || lon == nil || s.Timestamp == nil {
				continue
			}
			ms, ok := ToMillis(s.Timestamp, nil)
			if !ok {
				continue
			}
			out = append(out, Record{Lat: *lat, Lon: *lon, TsMs: ms})
		}
		return out
	}

	if p.Latitude == nil || p.Longitude == nil || p.Timestamp == nil {
		return nil
	}
	ms, ok := ToMillis(p.Timestamp, nil)
	if !ok {
		return nil
	}
	return []Record{{Lat: *p.Latitude, Lon: *p.Longitude, TsMs: ms}}
}

// firstOf returns the first non-nil coordinate. The batch shape
// prefers the long field names, matching the ingest contract.
func firstOf(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

// ─── Dedup keys ─────────────────────────────────────────────

// PointKey is the canonical dedup key of a point: the instant plus
// both coordinates rounded to 6 decimal places (~0.1 m).
func PointKey(ts string, lat, lon float64) string {
	return ts + "|" + strconv.FormatFloat(round6(lat), 'f', 6, 64) +
		"|" + strconv.FormatFloat(round6(lon), 'f', 6, 64)
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
