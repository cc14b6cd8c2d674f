package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/geocode"
	"github.com/shiva/dayline/internal/keys"
	"github.com/shiva/dayline/internal/store"
)

// Read-retry policy for the enrich input: the triggering object may
// not be visible yet under read-after-write lag.
const (
	enrichReadRetries = 5
	enrichReadBackoff = 300 * time.Millisecond
)

// Enricher annotates segment collections with reverse-geocoded labels
// and place components. Segments pass through structurally: unknown
// fields survive, only label/placeInfo are added.
//
// Stays locate their coordinate strictly under "center". Visits fall
// back through "center", "point", "location", then the record itself;
// both behaviors are load-bearing for historical files.
type Enricher struct {
	st      store.ObjectStore
	bucket  string
	gc      *geocode.Client
	b       bus.Bus // nil: no chaining
	tripsFn string
	sleep   func(time.Duration)
	log     zerolog.Logger
}

// NewEnricher wires the enrich stage. gc, b, and tripsFn are optional;
// without a geocoder every segment gets a null label.
func NewEnricher(st store.ObjectStore, bucket string, gc *geocode.Client, b bus.Bus, tripsFn string, log zerolog.Logger) *Enricher {
	return &Enricher{
		st:      st,
		bucket:  bucket,
		gc:      gc,
		b:       b,
		tripsFn: tripsFn,
		sleep:   time.Sleep,
		log:     log,
	}
}

// WithSleep overrides the backoff sleeper, for tests.
func (e *Enricher) WithSleep(sleep func(time.Duration)) *Enricher {
	e.sleep = sleep
	return e
}

// HandleEvent processes every stays.json / visits.json record of an
// event. Skips are logged; a failing record never aborts its siblings.
func (e *Enricher) HandleEvent(ctx context.Context, evt bus.Event) {
	for _, rec := range evt.Records {
		bucket := rec.S3.Bucket.Name
		key := keys.Clean(rec.S3.Object.Key)

		if bucket != e.bucket {
			e.log.Info().Str("event", "skip_bucket_mismatch").Str("bucket", bucket).Send()
			continue
		}

		switch {
		case keys.IsStays(key):
			if err := e.processCollection(ctx, key, keys.StaysEnrichedFile, false); err != nil {
				e.log.Error().Str("event", "enrich_error").Str("key", key).Err(err).Send()
			}
		case keys.IsVisits(key):
			if err := e.processCollection(ctx, key, keys.VisitsEnrichedFile, true); err != nil {
				e.log.Error().Str("event", "enrich_error").Str("key", key).Err(err).Send()
			}
		default:
			e.log.Info().Str("event", "skip_key_not_target").Str("key", key).Send()
		}
	}
}

// processCollection enriches one segment array and writes the
// *_enriched.json sibling.
func (e *Enricher) processCollection(ctx context.Context, key, outName string, visitFallback bool) error {
	body, err := e.readWithRetry(ctx, key)
	if err != nil {
		return err
	}

	var items []map[string]interface{}
	if err := json.Unmarshal(body, &items); err != nil {
		e.log.Info().Str("event", "skip_not_list").Str("key", key).Send()
		return nil
	}

	for _, item := range items {
		lat, lon, ok := segmentCoords(item, visitFallback)
		if !ok || e.gc == nil {
			item["label"] = nil
			continue
		}
		place := e.gc.Reverse(ctx, lat, lon)
		if place == nil {
			item["label"] = nil
			continue
		}
		if place.Label != "" {
			item["label"] = place.Label
		} else {
			item["label"] = nil
		}
		item["placeInfo"] = place.Info()
	}

	outKey := keys.Sibling(key, outName)
	if err := putJSON(ctx, e.st, outKey, items); err != nil {
		return err
	}
	e.log.Info().Str("event", "enriched_written").Str("key", outKey).Int("count", len(items)).Send()

	if e.b != nil && e.tripsFn != "" && outName == keys.StaysEnrichedFile {
		if err := e.b.Publish(ctx, e.tripsFn, bus.ObjectCreated(e.bucket, outKey)); err != nil {
			e.log.Warn().Str("event", "invoke_trips_error").Str("key", outKey).Err(err).Send()
		}
	}
	return nil
}

// readWithRetry tolerates read-after-write lag: a not-yet-visible key
// is retried with exponential backoff, and a persistent miss dumps the
// sibling listing for diagnostics before giving up.
func (e *Enricher) readWithRetry(ctx context.Context, key string) ([]byte, error) {
	delay := enrichReadBackoff
	var lastErr error
	for attempt := 0; attempt < enrichReadRetries; attempt++ {
		body, err := e.st.Get(ctx, key)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, store.ErrNotExist) {
			return nil, err
		}
		lastErr = err
		e.sleep(delay)
		delay *= 2
	}
	e.dumpSiblings(ctx, key)
	return nil, fmt.Errorf("enrich: %s not visible after %d attempts: %w", key, enrichReadRetries, lastErr)
}

func (e *Enricher) dumpSiblings(ctx context.Context, key string) {
	prefix := keys.Parent(key)
	names, err := e.st.List(ctx, prefix, 50)
	if err != nil {
		e.log.Info().Str("event", "diag_list_failed").Str("prefix", prefix).Err(err).Send()
		return
	}
	e.log.Info().Str("event", "diag_list").Str("prefix", prefix).Strs("names", names).Send()
}

// segmentCoords locates a segment's coordinate pair. Stays look only
// at "center"; visits fall back through the historical field names and
// finally the record itself. The fallback picks the first present
// non-empty mapping and then commits to it: a center without usable
// coordinates does not fall through to the next candidate.
func segmentCoords(item map[string]interface{}, visitFallback bool) (float64, float64, bool) {
	candidates := []interface{}{item["center"]}
	if visitFallback {
		candidates = append(candidates, item["point"], item["location"], item)
	}
	for _, c := range candidates {
		m, ok := c.(map[string]interface{})
		if !ok || len(m) == 0 {
			continue
		}
		lat, okLat := numField(m, "lat")
		lon, okLon := numField(m, "lon")
		return lat, lon, okLat && okLon
	}
	return 0, 0, false
}

func numField(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}
