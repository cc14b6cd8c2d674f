package geo

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/shiva/dayline/internal/model"
)

// stationaryPoints returns n points at (lat,lon) spaced step apart,
// starting at startISO.
func stationaryPoints(t *testing.T, n int, lat, lon float64, startISO string, step time.Duration) []model.Point {
	t.Helper()
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		t.Fatalf("bad start: %v", err)
	}
	pts := make([]model.Point, 0, n)
	for i := 0; i < n; i++ {
		pts = append(pts, model.Point{
			DeviceID: "d1",
			Lat:      lat,
			Lon:      lon,
			Ts:       start.Add(time.Duration(i) * step).UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return pts
}

func TestDetectDwells_Empty(t *testing.T) {
	got := DetectDwells(nil, 200, 300*time.Second)
	if got == nil || len(got) != 0 {
		t.Errorf("DetectDwells(empty) = %v, want empty non-nil slice", got)
	}
}

func TestDetectDwells_SinglePoint(t *testing.T) {
	pts := stationaryPoints(t, 1, 35.68, 139.76, "2024-05-01T09:00:00Z", 20*time.Second)
	got := DetectDwells(pts, 200, 300*time.Second)
	if len(got) != 0 {
		t.Errorf("DetectDwells(single point) = %v, want no segments", got)
	}
}

func TestDetectDwells_StationaryTenMinutes(t *testing.T) {
	// Thirty points 20s apart: 09:00:00Z .. 09:09:40Z.
	pts := stationaryPoints(t, 30, 35.680, 139.760, "2024-05-01T09:00:00Z", 20*time.Second)

	stays := DetectDwells(pts, 200, 300*time.Second)
	if len(stays) != 1 {
		t.Fatalf("stays = %d segments, want 1", len(stays))
	}
	s := stays[0]
	if s.Start != "2024-05-01T09:00:00Z" || s.End != "2024-05-01T09:09:40Z" {
		t.Errorf("stay extents = [%s, %s], want full span", s.Start, s.End)
	}
	if s.Center.Lat != 35.680 || s.Center.Lon != 139.760 {
		t.Errorf("stay center = (%v,%v), want (35.680,139.760)", s.Center.Lat, s.Center.Lon)
	}

	// Same extents under the visit regime.
	visits := DetectDwells(pts, 120, 30*time.Second)
	if len(visits) != 1 || visits[0] != s {
		t.Errorf("visits = %v, want same single segment as stays", visits)
	}
}

func TestDetectDwells_TooShortDwellDropped(t *testing.T) {
	// Two minutes of dwell: under the 5-minute stay minimum but over
	// the 30-second visit minimum.
	pts := stationaryPoints(t, 7, 35.680, 139.760, "2024-05-01T09:00:00Z", 20*time.Second)

	if got := DetectDwells(pts, 200, 300*time.Second); len(got) != 0 {
		t.Errorf("stays = %v, want none for a 2-minute dwell", got)
	}
	if got := DetectDwells(pts, 120, 30*time.Second); len(got) != 1 {
		t.Errorf("visits = %v, want exactly one", got)
	}
}

func TestDetectDwells_TwoDwellsSplitByMove(t *testing.T) {
	// Dwell at P1 09:00–09:10, jump ~5km east, dwell at P2 10:00–10:20.
	pts := stationaryPoints(t, 31, 35.6800, 139.7600, "2024-05-01T09:00:00Z", 20*time.Second)
	pts = append(pts, stationaryPoints(t, 61, 35.6800, 139.8152, "2024-05-01T10:00:00Z", 20*time.Second)...)

	stays := DetectDwells(pts, 200, 300*time.Second)
	if len(stays) != 2 {
		t.Fatalf("stays = %d segments, want 2", len(stays))
	}
	if stays[0].End != "2024-05-01T09:10:00Z" {
		t.Errorf("first stay end = %s, want 09:10:00Z", stays[0].End)
	}
	if stays[1].Start != "2024-05-01T10:00:00Z" || stays[1].End != "2024-05-01T10:20:00Z" {
		t.Errorf("second stay = [%s, %s], want [10:00:00Z, 10:20:00Z]", stays[1].Start, stays[1].End)
	}
}

func TestDetectDwells_UnparseableTimestampsSkipped(t *testing.T) {
	pts := stationaryPoints(t, 30, 35.680, 139.760, "2024-05-01T09:00:00Z", 20*time.Second)
	// Splice in a corrupt line; the zero time it would otherwise parse
	// to must not stretch the window back to year 1.
	pts = append(pts[:15], append([]model.Point{
		{DeviceID: "d1", Lat: 35.680, Lon: 139.760, Ts: "not-a-time"},
	}, pts[15:]...)...)

	stays := DetectDwells(pts, 200, 300*time.Second)
	if len(stays) != 1 {
		t.Fatalf("stays = %d segments, want 1", len(stays))
	}
	if stays[0].Start != "2024-05-01T09:00:00Z" || stays[0].End != "2024-05-01T09:09:40Z" {
		t.Errorf("stay extents = [%s, %s], want clean full span", stays[0].Start, stays[0].End)
	}

	only := []model.Point{{DeviceID: "d1", Lat: 35.68, Lon: 139.76, Ts: "garbage"}}
	if got := DetectDwells(only, 200, 300*time.Second); len(got) != 0 {
		t.Errorf("all-corrupt input = %v, want no segments", got)
	}
}

func TestDetectDwells_Deterministic(t *testing.T) {
	pts := stationaryPoints(t, 20, 35.68, 139.76, "2024-05-01T09:00:00Z", 45*time.Second)
	pts = append(pts, stationaryPoints(t, 20, 35.70, 139.80, "2024-05-01T11:00:00Z", 45*time.Second)...)

	first := DetectDwells(pts, 200, 300*time.Second)
	for run := 0; run < 3; run++ {
		again := DetectDwells(pts, 200, 300*time.Second)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %v vs %v", run, again, first)
		}
	}
}

func TestDetectDwells_SegmentInvariants(t *testing.T) {
	pts := stationaryPoints(t, 40, 35.68, 139.76, "2024-05-01T09:00:00Z", 30*time.Second)
	pts = append(pts, stationaryPoints(t, 40, 35.75, 139.90, "2024-05-01T12:00:00Z", 30*time.Second)...)

	for _, tc := range []struct {
		radiusM float64
		minDur  time.Duration
	}{
		{200, 300 * time.Second},
		{120, 30 * time.Second},
	} {
		t.Run(fmt.Sprintf("r=%v", tc.radiusM), func(t *testing.T) {
			for _, s := range DetectDwells(pts, tc.radiusM, tc.minDur) {
				start, err1 := time.Parse(time.RFC3339, s.Start)
				end, err2 := time.Parse(time.RFC3339, s.End)
				if err1 != nil || err2 != nil {
					t.Fatalf("unparseable extents: %v %v", err1, err2)
				}
				if end.Before(start) {
					t.Errorf("segment end %s before start %s", s.End, s.Start)
				}
			}
		})
	}
}
