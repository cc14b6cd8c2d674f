package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/keys"
	"github.com/shiva/dayline/internal/model"
	"github.com/shiva/dayline/internal/route"
	"github.com/shiva/dayline/internal/store"
	"github.com/shiva/dayline/pkg/geo"
)

// enrichedStay is the slice of an enriched segment the trip builder
// needs; everything else in the record is ignored.
type enrichedStay struct {
	Center *model.Location `json:"center"`
	Start  string          `json:"start"`
	End    string          `json:"end"`
	Label  *string         `json:"label"`
}

// TripBuilder pairs consecutive enriched stays into trips and renders
// their polylines. With no route calculator configured — or whenever
// routing fails — geometry degrades to the straight two-point line and
// the trip is flagged as fallback.
type TripBuilder struct {
	st     store.ObjectStore
	bucket string
	calc   route.Calculator // nil: straight-line only
	log    zerolog.Logger
}

// NewTripBuilder wires the trips stage. calc is optional.
func NewTripBuilder(st store.ObjectStore, bucket string, calc route.Calculator, log zerolog.Logger) *TripBuilder {
	return &TripBuilder{st: st, bucket: bucket, calc: calc, log: log}
}

// HandleEvent processes every stays_enriched.json record of an event.
func (t *TripBuilder) HandleEvent(ctx context.Context, evt bus.Event) {
	for _, rec := range evt.Records {
		bucket := rec.S3.Bucket.Name
		key := keys.Clean(rec.S3.Object.Key)
		if key == "" {
			t.log.Warn().Str("event", "record_missing_key").Send()
			continue
		}
		if err := t.ProcessEnrichedStays(ctx, bucket, key); err != nil {
			t.log.Error().Str("event", "process_exception").Str("key", key).Err(err).Send()
		}
	}
}

// ProcessEnrichedStays builds trips.json and geojson.json next to one
// enriched stays collection. An empty or malformed collection still
// writes both outputs, as empty ones.
func (t *TripBuilder) ProcessEnrichedStays(ctx context.Context, bucket, key string) error {
	if t.bucket != "" && bucket != t.bucket {
		t.log.Info().Str("event", "skip_other_bucket").Str("bucket", bucket).Send()
		return nil
	}
	if !keys.IsStaysEnriched(key) {
		t.log.Info().Str("event", "skip_non_enriched_key").Str("key", key).Send()
		return nil
	}

	if ok, err := t.st.Exists(ctx, key); err == nil && !ok {
		t.log.Warn().Str("event", "input_not_visible").Str("key", key).Send()
	}

	body, err := t.st.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("trips: read %s: %w", key, err)
	}

	tripsKey := keys.Sibling(key, keys.TripsFile)
	geoKey := keys.Sibling(key, keys.GeoJSONFile)

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil || len(raws) == 0 {
		t.log.Warn().Str("event", "stays_empty_or_invalid").Str("key", key).Send()
		if err := putJSON(ctx, t.st, tripsKey, []model.Trip{}); err != nil {
			return err
		}
		return putJSON(ctx, t.st, geoKey, model.NewFeatureCollection())
	}

	// Elements decode independently: one malformed stay must not
	// collapse the whole day. A bad element degrades to a centerless
	// stay, which the pairing loop skips and counts.
	stays := make([]enrichedStay, 0, len(raws))
	for i, raw := range raws {
		var s enrichedStay
		if err := json.Unmarshal(raw, &s); err != nil {
			t.log.Warn().Str("event", "stay_decode_error").Str("key", key).Int("index", i).Err(err).Send()
			s = enrichedStay{}
		}
		stays = append(stays, s)
	}

	trips, features := t.buildTrips(ctx, stays)

	if err := putJSON(ctx, t.st, tripsKey, trips); err != nil {
		return err
	}
	if err := putJSON(ctx, t.st, geoKey, model.FeatureCollection{Type: "FeatureCollection", Features: features}); err != nil {
		return err
	}
	t.log.Info().Str("event", "outputs_written").
		Str("key", key).Int("trips", len(trips)).Int("features", len(features)).Send()
	return nil
}

// buildTrips walks consecutive stay pairs in end-time order.
func (t *TripBuilder) buildTrips(ctx context.Context, stays []enrichedStay) ([]model.Trip, []model.Feature) {
	sorted := make([]enrichedStay, len(stays))
	copy(sorted, stays)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sortTime(sorted[i]) < sortTime(sorted[j])
	})

	trips := []model.Trip{}
	features := []model.Feature{}
	skippedMissingCenter := 0

	for i := 0; i+1 < len(sorted); i++ {
		a, b := sorted[i], sorted[i+1]
		if a.Center == nil || b.Center == nil {
			skippedMissingCenter++
			continue
		}

		coords, distKm, fallback := t.routeCoords(ctx, *a.Center, *b.Center)

		trip := model.Trip{
			From: model.TripEndpoint{
				Time:  firstNonEmpty(a.End, a.Start),
				Lat:   a.Center.Lat,
				Lon:   a.Center.Lon,
				Label: a.Label,
			},
			To: model.TripEndpoint{
				Time:  firstNonEmpty(b.Start, b.End),
				Lat:   b.Center.Lat,
				Lon:   b.Center.Lon,
				Label: b.Label,
			},
			DistanceKm: round3(distKm),
			Fallback:   fallback,
		}
		trips = append(trips, trip)
		features = append(features, model.Feature{
			Type:     "Feature",
			Geometry: model.LineString{Type: "LineString", Coordinates: coords},
			Properties: model.TripProperties{
				Type:       "trip",
				FromTime:   trip.From.Time,
				ToTime:     trip.To.Time,
				FromLabel:  trip.From.Label,
				ToLabel:    trip.To.Label,
				DistanceKm: trip.DistanceKm,
				Fallback:   trip.Fallback,
			},
		})
	}

	t.log.Info().Str("event", "trips_build_summary").
		Int("created", len(trips)).Int("skipped_missing_center", skippedMissingCenter).Send()
	return trips, features
}

// routeCoords fetches the road polyline for one pair, or falls back to
// the straight two-point line. The router gets no retry budget: any
// failure goes straight to fallback with the haversine distance.
func (t *TripBuilder) routeCoords(ctx context.Context, from, to model.Location) ([][]float64, *float64, bool) {
	straight := [][]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}}
	haversine := geo.HaversineKm(from, to)

	if t.calc == nil {
		t.log.Debug().Str("event", "route_calc_skipped_no_calculator").Send()
		return straight, &haversine, true
	}

	res, err := t.calc.Calculate(ctx, from, to)
	if err != nil {
		t.log.Warn().Str("event", "route_error").Err(err).Send()
		return straight, &haversine, true
	}

	dist := res.DistanceKm
	if dist == nil {
		dist = &haversine
	}
	return res.Coordinates, dist, false
}

func sortTime(s enrichedStay) string {
	return firstNonEmpty(s.End, s.Start)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func round3(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*1000) / 1000
	return &r
}
