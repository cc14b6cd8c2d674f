package stage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/keys"
	"github.com/shiva/dayline/internal/model"
	"github.com/shiva/dayline/internal/normalize"
	"github.com/shiva/dayline/internal/store"
)

// Merger folds raw observation objects into the canonical per-day
// points.jsonl files. The merge is idempotent: replaying the same raw
// object reproduces the file byte for byte, because the result is the
// deduplicated, time-sorted union of everything seen so far.
//
// Writes to the same (device, day) are serialized within this process
// by a per-key mutex; across processes the write is last-write-wins.
type Merger struct {
	st      store.ObjectStore
	bucket  string
	b       bus.Bus // nil: no chaining
	staysFn string
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMerger wires the merge stage. b and staysFn are optional.
func NewMerger(st store.ObjectStore, bucket string, b bus.Bus, staysFn string, log zerolog.Logger) *Merger {
	return &Merger{
		st:      st,
		bucket:  bucket,
		b:       b,
		staysFn: staysFn,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// HandleEvent processes every raw-object record of an event. A record
// that fails does not abort its siblings.
func (m *Merger) HandleEvent(ctx context.Context, evt bus.Event) {
	for _, rec := range evt.Records {
		bucket := rec.S3.Bucket.Name
		key := keys.Clean(rec.S3.Object.Key)
		if bucket == "" || key == "" {
			continue
		}
		if bucket != m.bucket || !keys.IsRaw(key) {
			continue
		}
		if _, err := m.ProcessRawObject(ctx, key); err != nil {
			m.log.Error().Str("event", "merge_error").Str("key", key).Err(err).Send()
		}
	}
}

// ProcessRawObject merges one raw object into the per-day PointSets it
// touches and returns the number of appended points.
func (m *Merger) ProcessRawObject(ctx context.Context, key string) (int, error) {
	body, err := m.readRaw(ctx, key)
	if err != nil {
		return 0, err
	}

	payload, err := normalize.ParsePayload(body)
	if err != nil {
		return 0, fmt.Errorf("merge: parse raw %s: %w", key, err)
	}
	deviceID := payload.Device()

	points := make([]model.Point, 0)
	for _, r := range payload.Points() {
		points = append(points, model.Point{
			DeviceID: deviceID,
			Lat:      r.Lat,
			Lon:      r.Lon,
			Ts:       normalize.ISOFromMillis(r.TsMs),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	// Partition by UTC day; each day merges independently.
	byDay := make(map[string][]model.Point)
	for _, p := range points {
		day := normalize.ISOToDay(p.Ts)
		byDay[day] = append(byDay[day], p)
	}

	total := 0
	for day, recs := range byDay {
		pointsKey := keys.Points(deviceID, day)
		if err := m.mergeDay(ctx, pointsKey, recs); err != nil {
			return total, err
		}

		if m.b != nil && m.staysFn != "" {
			if err := m.b.Publish(ctx, m.staysFn, bus.ObjectCreated(m.bucket, pointsKey)); err != nil {
				m.log.Warn().Str("event", "invoke_stays_error").Str("key", pointsKey).Err(err).Send()
			}
		}

		stub := fmt.Sprintf("Appended %d points from %s\n", len(recs), key)
		stubKey := keys.DayPrefix(deviceID, day) + keys.DiaryStubFile
		if err := m.st.Put(ctx, stubKey, []byte(stub), store.ContentTypeText); err != nil {
			m.log.Warn().Str("event", "stub_write_error").Str("key", stubKey).Err(err).Send()
		}
		total += len(recs)
	}
	return total, nil
}

// mergeDay runs one merge transaction: read, union, dedupe, sort,
// write back.
func (m *Merger) mergeDay(ctx context.Context, pointsKey string, recs []model.Point) error {
	lock := m.keyLock(pointsKey)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.loadExisting(ctx, pointsKey)
	if err != nil {
		return err
	}

	merged := append(existing, recs...)

	seen := make(map[string]struct{}, len(merged))
	uniq := make([]model.Point, 0, len(merged))
	for _, p := range merged {
		k := normalize.PointKey(p.Ts, p.Lat, p.Lon)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, p)
	}

	sort.SliceStable(uniq, func(i, j int) bool {
		return uniq[i].Ts < uniq[j].Ts
	})

	var buf bytes.Buffer
	for _, p := range uniq {
		line, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("merge: marshal point: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	m.log.Info().Str("event", "merge").
		Int("existing", len(existing)).Int("new", len(recs)).Int("after", len(uniq)).
		Str("key", pointsKey).Send()

	return m.st.Put(ctx, pointsKey, buf.Bytes(), store.ContentTypeJSONL)
}

// loadExisting parses the current points.jsonl tolerantly: both field
// name variants and both timestamp encodings are accepted, malformed
// lines are silently discarded, an absent object is an empty set.
func (m *Merger) loadExisting(ctx context.Context, pointsKey string) ([]model.Point, error) {
	body, err := m.st.Get(ctx, pointsKey)
	if errors.Is(err, store.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParsePointLines(body), nil
}

// ParsePointLines decodes newline-delimited point records, tolerating
// field-name and timestamp-unit variance. Shared with the segment
// stage, which reads the same file.
func ParsePointLines(body []byte) []model.Point {
	out := make([]model.Point, 0)
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec struct {
			DeviceID  string   `json:"deviceId"`
			Lat       *float64 `json:"lat"`
			Latitude  *float64 `json:"latitude"`
			Lon       *float64 `json:"lon"`
			Longitude *float64 `json:"longitude"`
			Ts        string   `json:"ts"`
			Timestamp *float64 `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		lat := rec.Lat
		if lat == nil {
			lat = rec.Latitude
		}
		lon := rec.Lon
		if lon == nil {
			lon = rec.Longitude
		}
		ts := rec.Ts
		if ts == "" && rec.Timestamp != nil {
			ts = normalize.EpochToISO(*rec.Timestamp)
		}
		if lat == nil || lon == nil || ts == "" {
			continue
		}
		deviceID := rec.DeviceID
		if deviceID == "" {
			deviceID = normalize.DefaultDeviceID
		}
		out = append(out, model.Point{DeviceID: deviceID, Lat: *lat, Lon: *lon, Ts: ts})
	}
	return out
}

// readRaw fetches a raw object, transparently inflating *.gz bodies.
func (m *Merger) readRaw(ctx context.Context, key string) ([]byte, error) {
	body, err := m.st.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("merge: read %s: %w", key, err)
	}
	if strings.HasSuffix(key, ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("merge: gunzip %s: %w", key, err)
		}
		defer zr.Close()
		body, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("merge: gunzip %s: %w", key, err)
		}
	}
	return body, nil
}

func (m *Merger) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	m.locks[key] = l
	return l
}
