// Package route wraps the road-network routing capability used by the
// trip builder. The calculator is optional: when unconfigured the trip
// builder degrades to straight-line geometry on its own.
package route

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/location"

	"github.com/shiva/dayline/internal/model"
)

// Result is a computed road polyline. Coordinates are [lon, lat]
// pairs; DistanceKm is the router's own summary distance when it
// reported one.
type Result struct {
	Coordinates [][]float64
	DistanceKm  *float64
}

// Calculator computes a road polyline between two points. There is no
// retry budget: any error makes the caller fall back directly.
type Calculator interface {
	Calculate(ctx context.Context, from, to model.Location) (*Result, error)
}

// ─── AWS implementation ─────────────────────────────────────

// AWSCalculator routes via an Amazon Location route calculator.
type AWSCalculator struct {
	client     *location.Client
	calculator string
}

// NewAWSCalculator binds a calculator resource.
func NewAWSCalculator(client *location.Client, calculator string) *AWSCalculator {
	return &AWSCalculator{client: client, calculator: calculator}
}

// Calculate requests leg geometry and converts the first leg's
// linestring, silently dropping malformed coordinate pairs. A route
// with no legs or no linestring is an error so the caller falls back.
func (c *AWSCalculator) Calculate(ctx context.Context, from, to model.Location) (*Result, error) {
	out, err := c.client.CalculateRoute(ctx, &location.CalculateRouteInput{
		CalculatorName:      aws.String(c.calculator),
		DeparturePosition:   []float64{from.Lon, from.Lat},
		DestinationPosition: []float64{to.Lon, to.Lat},
		IncludeLegGeometry:  aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("route: calculate: %w", err)
	}

	res := &Result{}
	if out.Summary != nil && out.Summary.Distance != nil {
		res.DistanceKm = out.Summary.Distance
	}

	if len(out.Legs) == 0 {
		return nil, fmt.Errorf("route: no legs in response")
	}
	geom := out.Legs[0].Geometry
	if geom == nil || len(geom.LineString) == 0 {
		return nil, fmt.Errorf("route: no linestring in first leg")
	}

	for _, pt := range geom.LineString {
		if len(pt) >= 2 {
			res.Coordinates = append(res.Coordinates, []float64{pt[0], pt[1]})
		}
	}
	if len(res.Coordinates) == 0 {
		return nil, fmt.Errorf("route: empty coords after parse")
	}
	return res, nil
}
