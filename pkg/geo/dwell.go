package geo

import (
	"time"

	"github.com/shiva/dayline/internal/model"
)

// DetectDwells finds contiguous runs of points that stayed within
// radiusM of their moving centroid for at least minDur. The same
// routine serves both regimes (stays and visits); only the thresholds
// differ.
//
// Single-pass sliding window. When the window's max distance from its
// centroid exceeds the radius at index i, the candidate segment covers
// points[start:i-1] with centroid and extents recomputed over that
// shorter window, and the next window restarts at i-1 so the boundary
// point belongs to both. A final tail window is flushed if it lasted
// long enough.
//
// The result is never nil; callers serialize it directly as a JSON
// array and an empty PointSet must yield [].
//
// Complexity: O(N × W) where W is the window width.
func DetectDwells(points []model.Point, radiusM float64, minDur time.Duration) []model.Segment {
	segs := []model.Segment{}

	// Points whose timestamp fails to parse carry no duration
	// information and are dropped up front.
	kept := make([]model.Point, 0, len(points))
	ts := make([]time.Time, 0, len(points))
	for _, p := range points {
		t, err := time.Parse(time.RFC3339, p.Ts)
		if err != nil {
			continue
		}
		kept = append(kept, p)
		ts = append(ts, t)
	}
	points = kept

	n := len(points)
	if n == 0 {
		return segs
	}

	start := 0
	for i := 1; i <= n; i++ {
		window := points[start:i]
		center := Centroid(window)
		maxR := MaxRadiusM(center, window)
		dur := ts[i-1].Sub(ts[start])

		if maxR > radiusM {
			// Duration is judged on the window that broke the radius;
			// the emitted extents come from the shorter one.
			if dur >= minDur && len(window) > 1 {
				w2 := points[start : i-1]
				segs = append(segs, model.Segment{
					Center: Centroid(w2),
					Start:  w2[0].Ts,
					End:    w2[len(w2)-1].Ts,
				})
			}
			start = i - 1
		}
	}

	if start < n {
		window := points[start:n]
		if ts[n-1].Sub(ts[start]) >= minDur {
			segs = append(segs, model.Segment{
				Center: Centroid(window),
				Start:  window[0].Ts,
				End:    window[len(window)-1].Ts,
			})
		}
	}

	return segs
}
