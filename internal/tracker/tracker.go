// Package tracker echoes ingested positions to the live-tracking
// capability so the current device position mirrors the diary intake.
// The echo is best-effort: ingest never fails because of it.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/location"
	loctypes "github.com/aws/aws-sdk-go-v2/service/location/types"
)

// batchSize is the tracker API's per-call update limit.
const batchSize = 10

// Sample is one position update.
type Sample struct {
	Lat  float64
	Lon  float64
	Time time.Time
}

// Tracker pushes a device's position samples upstream.
type Tracker interface {
	UpdatePositions(ctx context.Context, deviceID string, samples []Sample) error
}

// ─── AWS implementation ─────────────────────────────────────

// AWSTracker updates an Amazon Location tracker in batches of 10.
type AWSTracker struct {
	client  *location.Client
	tracker string
}

// NewAWSTracker binds a tracker resource.
func NewAWSTracker(client *location.Client, tracker string) *AWSTracker {
	return &AWSTracker{client: client, tracker: tracker}
}

// UpdatePositions sends the samples in order, chunked to the API
// limit. A failing chunk does not abort the remaining ones; the last
// failure is reported so the caller can log it.
func (t *AWSTracker) UpdatePositions(ctx context.Context, deviceID string, samples []Sample) error {
	updates := make([]loctypes.DevicePositionUpdate, 0, len(samples))
	for _, s := range samples {
		updates = append(updates, loctypes.DevicePositionUpdate{
			DeviceId:   aws.String(deviceID),
			Position:   []float64{s.Lon, s.Lat},
			SampleTime: aws.Time(s.Time),
		})
	}

	var lastErr error
	for start := 0; start < len(updates); start += batchSize {
		end := start + batchSize
		if end > len(updates) {
			end = len(updates)
		}
		_, err := t.client.BatchUpdateDevicePosition(ctx, &location.BatchUpdateDevicePositionInput{
			TrackerName: aws.String(t.tracker),
			Updates:     updates[start:end],
		})
		if err != nil {
			lastErr = fmt.Errorf("tracker: batch update: %w", err)
		}
	}
	return lastErr
}
