package stage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/geocode"
	"github.com/shiva/dayline/internal/model"
	"github.com/shiva/dayline/internal/store"
)

func fixedClock(iso string) func() time.Time {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestIngestSingleShape(t *testing.T) {
	st := store.NewMemory()
	ing := NewIngestor(st, testBucket, nil, nil, nil, "", nopLog())

	body := []byte(`{"deviceId":"d1","latitude":35.68,"longitude":139.76,"timestamp":"2024-05-01T10:00:00Z"}`)
	saved, err := ing.Ingest(context.Background(), body, "abcd1234")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "raw/d1/1714557600000-abcd1234-0.json", saved[0])

	raw, err := st.Get(context.Background(), saved[0])
	require.NoError(t, err)

	var rec model.RawRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "d1", rec.DeviceID)
	assert.Equal(t, int64(1714557600000), rec.Timestamp)
	assert.Equal(t, 35.68, rec.Latitude)
	assert.Equal(t, 139.76, rec.Longitude)
	assert.Empty(t, rec.Address)
}

func TestIngestBatchShape(t *testing.T) {
	st := store.NewMemory()
	ing := NewIngestor(st, testBucket, nil, nil, nil, "", nopLog())

	body := []byte(`{"deviceId":"d2","locations":[
		{"lat":35.68,"lon":139.76,"timestamp":1714557600},
		{"lat":35.69,"lon":139.77,"timestamp":1714557660000},
		{"lat":35.70}
	]}`)
	saved, err := ing.Ingest(context.Background(), body, "rid00000")
	require.NoError(t, err)

	// The third sample has no longitude and is dropped.
	require.Len(t, saved, 2)
	assert.Equal(t, "raw/d2/1714557600000-rid00000-0.json", saved[0])
	assert.Equal(t, "raw/d2/1714557660000-rid00000-1.json", saved[1])
}

func TestIngestMissingTimestampDefaultsToNow(t *testing.T) {
	st := store.NewMemory()
	ing := NewIngestor(st, testBucket, nil, nil, nil, "", nopLog()).
		WithClock(fixedClock("2024-05-01T12:00:00Z"))

	body := []byte(`{"latitude":35.68,"longitude":139.76}`)
	saved, err := ing.Ingest(context.Background(), body, "rid00000")
	require.NoError(t, err)
	require.Len(t, saved, 1)

	// Anonymous payloads fall back to the shared device id.
	assert.Equal(t, "raw/web-unknown/1714564800000-rid00000-0.json", saved[0])
}

func TestIngestInvalidJSON(t *testing.T) {
	st := store.NewMemory()
	ing := NewIngestor(st, testBucket, nil, nil, nil, "", nopLog())

	_, err := ing.Ingest(context.Background(), []byte(`{not json`), "rid00000")
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestIngestNoValidLocations(t *testing.T) {
	st := store.NewMemory()
	ing := NewIngestor(st, testBucket, nil, nil, nil, "", nopLog())

	_, err := ing.Ingest(context.Background(), []byte(`{"deviceId":"d1","locations":[]}`), "rid00000")
	assert.ErrorIs(t, err, ErrNoValidLocations)

	_, err = ing.Ingest(context.Background(), []byte(`{"latitude":35.68,"longitude":139.76,"timestamp":"not-a-time"}`), "rid00000")
	assert.ErrorIs(t, err, ErrNoValidLocations)
}

func TestIngestEchoesTracker(t *testing.T) {
	st := store.NewMemory()
	trk := &fakeTracker{}
	ing := NewIngestor(st, testBucket, trk, nil, nil, "", nopLog())

	body := []byte(`{"deviceId":"d1","locations":[
		{"lat":35.68,"lon":139.76,"timestamp":1714557600},
		{"lat":35.69,"lon":139.77,"timestamp":1714557660}
	]}`)
	_, err := ing.Ingest(context.Background(), body, "rid00000")
	require.NoError(t, err)

	require.Len(t, trk.samples, 1)
	assert.Equal(t, "d1", trk.devices[0])
	require.Len(t, trk.samples[0], 2)
	assert.Equal(t, 35.68, trk.samples[0][0].Lat)
}

func TestIngestTrackerFailureIsNotFatal(t *testing.T) {
	st := store.NewMemory()
	trk := &fakeTracker{err: errUnavailable}
	ing := NewIngestor(st, testBucket, trk, nil, nil, "", nopLog())

	body := []byte(`{"deviceId":"d1","latitude":35.68,"longitude":139.76,"timestamp":1714557600}`)
	saved, err := ing.Ingest(context.Background(), body, "rid00000")
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestIngestAttachesAddress(t *testing.T) {
	st := store.NewMemory()
	gc := &fakeGeocoder{place: &geocode.Place{Label: "1 Chome, Chiyoda"}}
	ing := NewIngestor(st, testBucket, nil, gc, nil, "", nopLog())

	body := []byte(`{"deviceId":"d1","latitude":35.68,"longitude":139.76,"timestamp":1714557600}`)
	saved, err := ing.Ingest(context.Background(), body, "rid00000")
	require.NoError(t, err)

	raw, err := st.Get(context.Background(), saved[0])
	require.NoError(t, err)
	var rec model.RawRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "1 Chome, Chiyoda", rec.Address)
}

func TestIngestPublishesMergeEvents(t *testing.T) {
	st := store.NewMemory()
	b := bus.NewInProcess(nopLog()).Synchronous()

	var mu sync.Mutex
	var seen []string
	b.Subscribe("merge", func(_ context.Context, evt bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		for _, rec := range evt.Records {
			assert.Equal(t, testBucket, rec.S3.Bucket.Name)
			seen = append(seen, rec.S3.Object.Key)
		}
	})

	ing := NewIngestor(st, testBucket, nil, nil, b, "merge", nopLog())
	body := []byte(`{"deviceId":"d1","locations":[
		{"lat":35.68,"lon":139.76,"timestamp":1714557600},
		{"lat":35.69,"lon":139.77,"timestamp":1714557660}
	]}`)
	saved, err := ing.Ingest(context.Background(), body, "rid00000")
	require.NoError(t, err)

	assert.Equal(t, saved, seen)
}
