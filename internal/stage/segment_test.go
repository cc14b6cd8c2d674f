package stage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/model"
	"github.com/shiva/dayline/internal/store"
)

// pointLines renders a points.jsonl body from (lat, lon, ts) triples.
func pointLines(t *testing.T, pts []model.Point) []byte {
	t.Helper()
	var sb strings.Builder
	for _, p := range pts {
		line, err := json.Marshal(p)
		require.NoError(t, err)
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// clusterAt emits n points one minute apart at a fixed coordinate.
func clusterAt(lat, lon float64, startISO string, n int) []model.Point {
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		panic(err)
	}
	pts := make([]model.Point, 0, n)
	for i := 0; i < n; i++ {
		pts = append(pts, model.Point{
			DeviceID: "d1",
			Lat:      lat,
			Lon:      lon,
			Ts:       start.Add(time.Duration(i) * time.Minute).UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return pts
}

func TestSegmentWritesStaysAndVisits(t *testing.T) {
	st := store.NewMemory()
	s := NewSegmenter(st, testBucket, DefaultStayThresholds, DefaultVisitThresholds, nil, "", nopLog())

	key := "processed/d1/date=2024-05-01/points.jsonl"
	pts := clusterAt(35.68, 139.76, "2024-05-01T10:00:00Z", 15)
	require.NoError(t, st.Put(context.Background(), key, pointLines(t, pts), store.ContentTypeJSONL))

	require.NoError(t, s.ProcessPoints(context.Background(), key))

	var stays []model.Segment
	body, err := st.Get(context.Background(), "processed/d1/date=2024-05-01/stays.json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &stays))
	require.Len(t, stays, 1)
	assert.InDelta(t, 35.68, stays[0].Center.Lat, 1e-9)
	assert.InDelta(t, 139.76, stays[0].Center.Lon, 1e-9)
	assert.Equal(t, "2024-05-01T10:00:00Z", stays[0].Start)
	assert.Equal(t, "2024-05-01T10:14:00Z", stays[0].End)

	// A stationary run satisfies the looser visit regime too.
	var visits []model.Segment
	body, err = st.Get(context.Background(), "processed/d1/date=2024-05-01/visits.json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &visits))
	require.Len(t, visits, 1)
	assert.Equal(t, stays[0], visits[0])
}

func TestSegmentSplitsOnRelocation(t *testing.T) {
	st := store.NewMemory()
	s := NewSegmenter(st, testBucket, DefaultStayThresholds, DefaultVisitThresholds, nil, "", nopLog())

	// Ten minutes downtown, a ~5 km jump, ten more minutes there.
	pts := clusterAt(35.68, 139.76, "2024-05-01T10:00:00Z", 10)
	pts = append(pts, clusterAt(35.68, 139.8152, "2024-05-01T10:15:00Z", 10)...)

	key := "processed/d1/date=2024-05-01/points.jsonl"
	require.NoError(t, st.Put(context.Background(), key, pointLines(t, pts), store.ContentTypeJSONL))
	require.NoError(t, s.ProcessPoints(context.Background(), key))

	var stays []model.Segment
	body, err := st.Get(context.Background(), "processed/d1/date=2024-05-01/stays.json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &stays))
	require.Len(t, stays, 2)
	assert.InDelta(t, 139.76, stays[0].Center.Lon, 1e-6)
	assert.InDelta(t, 139.8152, stays[1].Center.Lon, 1e-6)
	assert.True(t, stays[0].End <= stays[1].Start)
}

func TestSegmentEmptyPointsWritesEmptyArrays(t *testing.T) {
	st := store.NewMemory()
	s := NewSegmenter(st, testBucket, DefaultStayThresholds, DefaultVisitThresholds, nil, "", nopLog())

	key := "processed/d1/date=2024-05-01/points.jsonl"
	require.NoError(t, st.Put(context.Background(), key, []byte(""), store.ContentTypeJSONL))
	require.NoError(t, s.ProcessPoints(context.Background(), key))

	for _, name := range []string{"stays.json", "visits.json"} {
		body, err := st.Get(context.Background(), "processed/d1/date=2024-05-01/"+name)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(body), name)
	}
}

func TestSegmentReprocessingIsDeterministic(t *testing.T) {
	st := store.NewMemory()
	s := NewSegmenter(st, testBucket, DefaultStayThresholds, DefaultVisitThresholds, nil, "", nopLog())

	key := "processed/d1/date=2024-05-01/points.jsonl"
	pts := clusterAt(35.68, 139.76, "2024-05-01T10:00:00Z", 15)
	require.NoError(t, st.Put(context.Background(), key, pointLines(t, pts), store.ContentTypeJSONL))

	require.NoError(t, s.ProcessPoints(context.Background(), key))
	first, err := st.Get(context.Background(), "processed/d1/date=2024-05-01/stays.json")
	require.NoError(t, err)

	require.NoError(t, s.ProcessPoints(context.Background(), key))
	second, err := st.Get(context.Background(), "processed/d1/date=2024-05-01/stays.json")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSegmentPublishesEnrichEvents(t *testing.T) {
	st := store.NewMemory()
	b := bus.NewInProcess(nopLog()).Synchronous()

	var seen []string
	b.Subscribe("enrich", func(_ context.Context, evt bus.Event) {
		for _, rec := range evt.Records {
			seen = append(seen, rec.S3.Object.Key)
		}
	})

	s := NewSegmenter(st, testBucket, DefaultStayThresholds, DefaultVisitThresholds, b, "enrich", nopLog())
	key := "processed/d1/date=2024-05-01/points.jsonl"
	require.NoError(t, st.Put(context.Background(), key, []byte(""), store.ContentTypeJSONL))
	require.NoError(t, s.ProcessPoints(context.Background(), key))

	assert.Equal(t, []string{
		"processed/d1/date=2024-05-01/stays.json",
		"processed/d1/date=2024-05-01/visits.json",
	}, seen)
}

func TestSegmentHandleEventFiltersKeys(t *testing.T) {
	st := store.NewMemory()
	s := NewSegmenter(st, testBucket, DefaultStayThresholds, DefaultVisitThresholds, nil, "", nopLog())

	// A non-points key must not produce output even when it exists.
	key := "processed/d1/date=2024-05-01/stays.json"
	require.NoError(t, st.Put(context.Background(), key, []byte("[]"), store.ContentTypeJSON))
	s.HandleEvent(context.Background(), bus.ObjectCreated(testBucket, key))

	ok, err := st.Exists(context.Background(), "processed/d1/date=2024-05-01/visits.json")
	require.NoError(t, err)
	assert.False(t, ok)
}
