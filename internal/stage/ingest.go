package stage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/geocode"
	"github.com/shiva/dayline/internal/keys"
	"github.com/shiva/dayline/internal/model"
	"github.com/shiva/dayline/internal/normalize"
	"github.com/shiva/dayline/internal/store"
	"github.com/shiva/dayline/internal/tracker"
)

// ─── Errors ─────────────────────────────────────────────────

var (
	// ErrInvalidJSON means the request body was not parseable JSON.
	ErrInvalidJSON = errors.New("invalid_json")

	// ErrNoValidLocations means the payload held no usable record.
	ErrNoValidLocations = errors.New("no_valid_locations")
)

// ─── Ingestor ───────────────────────────────────────────────

// Ingestor accepts location payloads, writes one raw object per valid
// record, echoes positions to the live tracker, and optionally
// attaches a reverse-geocoded address. Tracker and geocoder failures
// are logged, never fatal: the raw write is the only thing the caller
// is promised.
type Ingestor struct {
	st       store.ObjectStore
	bucket   string
	trk      tracker.Tracker  // nil: echo disabled
	gc       geocode.Provider // nil: address lookup disabled
	b        bus.Bus          // nil: no in-process chaining
	mergeFn  string
	now      func() time.Time
	log      zerolog.Logger
}

// NewIngestor wires the ingest stage. trk, gc, and b are optional.
func NewIngestor(st store.ObjectStore, bucket string, trk tracker.Tracker, gc geocode.Provider, b bus.Bus, mergeFn string, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		st:      st,
		bucket:  bucket,
		trk:     trk,
		gc:      gc,
		b:       b,
		mergeFn: mergeFn,
		now:     time.Now,
		log:     log,
	}
}

// WithClock overrides the wall clock, for tests.
func (g *Ingestor) WithClock(now func() time.Time) *Ingestor {
	g.now = now
	return g
}

// Ingest processes one request body. rid is the 8-character
// correlation id derived from the request. Returns the stored raw
// keys, or ErrInvalidJSON / ErrNoValidLocations.
func (g *Ingestor) Ingest(ctx context.Context, body []byte, rid string) ([]string, error) {
	payload, err := normalize.ParsePayload(body)
	if err != nil {
		return nil, ErrInvalidJSON
	}
	deviceID := payload.Device()

	records := payload.Records(g.now)
	if len(records) == 0 {
		return nil, ErrNoValidLocations
	}

	// 1) Echo to the live tracker, best-effort.
	if g.trk != nil {
		samples := make([]tracker.Sample, 0, len(records))
		for _, r := range records {
			samples = append(samples, tracker.Sample{
				Lat:  r.Lat,
				Lon:  r.Lon,
				Time: time.UnixMilli(r.TsMs).UTC(),
			})
		}
		if err := g.trk.UpdatePositions(ctx, deviceID, samples); err != nil {
			g.log.Warn().Str("event", "tracker_update_error").Err(err).Send()
		}
	}

	// 2) One raw object per record; the optional address lookup rides
	// along inside the body.
	saved := make([]string, 0, len(records))
	for idx, r := range records {
		rec := model.RawRecord{
			DeviceID:  deviceID,
			Timestamp: r.TsMs,
			Latitude:  r.Lat,
			Longitude: r.Lon,
		}
		if g.gc != nil {
			if place, err := g.gc.ReverseGeocode(ctx, r.Lat, r.Lon); err != nil {
				g.log.Warn().Str("event", "reverse_geocode_error").Err(err).Send()
			} else if place != nil {
				rec.Address = place.Label
			}
		}

		key := keys.Raw(deviceID, r.TsMs, rid, idx)
		if err := putJSON(ctx, g.st, key, rec); err != nil {
			g.log.Error().Str("event", "s3_put_error").Str("key", key).Err(err).Send()
			continue
		}
		saved = append(saved, key)
	}

	// 3) Chain each saved raw object toward the merge stage.
	if g.b != nil && g.mergeFn != "" {
		for _, key := range saved {
			if err := g.b.Publish(ctx, g.mergeFn, bus.ObjectCreated(g.bucket, key)); err != nil {
				g.log.Warn().Str("event", "invoke_merge_error").Str("key", key).Err(err).Send()
			}
		}
	}

	return saved, nil
}
