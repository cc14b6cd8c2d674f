package stage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/keys"
	"github.com/shiva/dayline/internal/store"
	"github.com/shiva/dayline/pkg/geo"
)

// Thresholds is one dwell regime: maximum spread and minimum duration.
type Thresholds struct {
	RadiusM float64
	MinDur  time.Duration
}

// Default regimes. Stays describe "was here for a while"; visits catch
// shorter, tighter stops.
var (
	DefaultStayThresholds  = Thresholds{RadiusM: 200, MinDur: 300 * time.Second}
	DefaultVisitThresholds = Thresholds{RadiusM: 120, MinDur: 30 * time.Second}
)

// Segmenter turns each merged PointSet into its stays.json and
// visits.json siblings. Segmentation is a pure function of the
// PointSet and the thresholds, so reprocessing the same input always
// rewrites identical outputs.
type Segmenter struct {
	st       store.ObjectStore
	bucket   string
	stays    Thresholds
	visits   Thresholds
	b        bus.Bus // nil: no chaining
	enrichFn string
	log      zerolog.Logger
}

// NewSegmenter wires the segment stage. b and enrichFn are optional.
func NewSegmenter(st store.ObjectStore, bucket string, stays, visits Thresholds, b bus.Bus, enrichFn string, log zerolog.Logger) *Segmenter {
	return &Segmenter{
		st:       st,
		bucket:   bucket,
		stays:    stays,
		visits:   visits,
		b:        b,
		enrichFn: enrichFn,
		log:      log,
	}
}

// HandleEvent processes every points.jsonl record of an event.
func (s *Segmenter) HandleEvent(ctx context.Context, evt bus.Event) {
	for _, rec := range evt.Records {
		bucket := rec.S3.Bucket.Name
		key := keys.Clean(rec.S3.Object.Key)
		if bucket != s.bucket || !keys.IsPoints(key) {
			continue
		}
		if err := s.ProcessPoints(ctx, key); err != nil {
			s.log.Error().Str("event", "segment_error").Str("key", key).Err(err).Send()
		}
	}
}

// ProcessPoints reads one PointSet and writes both segment
// collections next to it.
func (s *Segmenter) ProcessPoints(ctx context.Context, key string) error {
	body, err := s.st.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("segment: read %s: %w", key, err)
	}

	points := ParsePointLines(body)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Ts < points[j].Ts
	})

	stays := geo.DetectDwells(points, s.stays.RadiusM, s.stays.MinDur)
	visits := geo.DetectDwells(points, s.visits.RadiusM, s.visits.MinDur)

	staysKey := keys.Sibling(key, keys.StaysFile)
	visitsKey := keys.Sibling(key, keys.VisitsFile)

	if err := putJSON(ctx, s.st, staysKey, stays); err != nil {
		return err
	}
	if err := putJSON(ctx, s.st, visitsKey, visits); err != nil {
		return err
	}

	s.log.Info().Str("event", "segments_written").
		Str("key", key).Int("points", len(points)).
		Int("stays", len(stays)).Int("visits", len(visits)).Send()

	if s.b != nil && s.enrichFn != "" {
		for _, out := range []string{staysKey, visitsKey} {
			if err := s.b.Publish(ctx, s.enrichFn, bus.ObjectCreated(s.bucket, out)); err != nil {
				s.log.Warn().Str("event", "invoke_enrich_error").Str("key", out).Err(err).Send()
			}
		}
	}
	return nil
}
