package geo

import (
	"math"
	"testing"

	"github.com/shiva/dayline/internal/model"
)

func TestHaversineM_SamePoint(t *testing.T) {
	loc := model.Location{Lat: 35.6812, Lon: 139.7671}
	got := HaversineM(loc, loc)
	if got != 0 {
		t.Errorf("HaversineM(same point) = %v, want 0", got)
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Tokyo Station to Shinjuku Station (~6.3 km)
	tokyo := model.Location{Lat: 35.6812, Lon: 139.7671}
	shinjuku := model.Location{Lat: 35.6896, Lon: 139.7006}
	got := HaversineKm(tokyo, shinjuku)
	wantMin, wantMax := 5.5, 7.5
	if got < wantMin || got > wantMax {
		t.Errorf("HaversineKm(Tokyo→Shinjuku) = %.2f km, want between %.1f and %.1f", got, wantMin, wantMax)
	}
}

func TestHaversineM_AgreesWithKmWithinRadiusSkew(t *testing.T) {
	a := model.Location{Lat: 35.68, Lon: 139.76}
	b := model.Location{Lat: 35.70, Lon: 139.80}
	m := HaversineM(a, b)
	km := HaversineKm(a, b)
	// The two constants differ by ~0.014%; the results must track.
	if math.Abs(m/1000.0-km) > km*0.001 {
		t.Errorf("HaversineM/1000 = %.4f, HaversineKm = %.4f, diverge too far", m/1000.0, km)
	}
}

func TestCentroid(t *testing.T) {
	points := []model.Point{
		{Lat: 35.0, Lon: 139.0},
		{Lat: 36.0, Lon: 140.0},
	}
	got := Centroid(points)
	if got.Lat != 35.5 || got.Lon != 139.5 {
		t.Errorf("Centroid = (%v,%v), want (35.5,139.5)", got.Lat, got.Lon)
	}
}

func TestMaxRadiusM(t *testing.T) {
	center := model.Location{Lat: 35.68, Lon: 139.76}
	points := []model.Point{
		{Lat: 35.68, Lon: 139.76},
		{Lat: 35.681, Lon: 139.76}, // ~111m north
	}
	got := MaxRadiusM(center, points)
	if got < 100 || got > 125 {
		t.Errorf("MaxRadiusM = %.1f m, want ~111 m", got)
	}
}
