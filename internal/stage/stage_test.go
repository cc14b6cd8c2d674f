package stage

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/geocode"
	"github.com/shiva/dayline/internal/model"
	"github.com/shiva/dayline/internal/route"
	"github.com/shiva/dayline/internal/tracker"
)

const testBucket = "diary-test"

func nopLog() zerolog.Logger {
	return zerolog.Nop()
}

// fakeGeocoder returns a fixed place for every lookup and records the
// coordinates it was asked about.
type fakeGeocoder struct {
	mu      sync.Mutex
	place   *geocode.Place
	err     error
	lookups [][2]float64
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (*geocode.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, [2]float64{lat, lon})
	if f.err != nil {
		return nil, f.err
	}
	return f.place, nil
}

func (f *fakeGeocoder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lookups)
}

// fakeTracker records the samples pushed to it.
type fakeTracker struct {
	mu      sync.Mutex
	devices []string
	samples [][]tracker.Sample
	err     error
}

func (f *fakeTracker) UpdatePositions(_ context.Context, deviceID string, samples []tracker.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, deviceID)
	f.samples = append(f.samples, samples)
	return f.err
}

// fakeCalculator returns a canned polyline or a canned error.
type fakeCalculator struct {
	result *route.Result
	err    error
	calls  int
}

func (f *fakeCalculator) Calculate(_ context.Context, _, _ model.Location) (*route.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var errUnavailable = errors.New("service unavailable")
