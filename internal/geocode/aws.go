package geocode

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/location"
)

// AWSProvider resolves positions against an Amazon Location place
// index. Positions are [lon, lat] on the wire.
type AWSProvider struct {
	client     *location.Client
	placeIndex string
	maxResults int32
	language   string
}

// NewAWSProvider creates a provider bound to one place index.
func NewAWSProvider(client *location.Client, placeIndex string, maxResults int32, language string) *AWSProvider {
	return &AWSProvider{
		client:     client,
		placeIndex: placeIndex,
		maxResults: maxResults,
		language:   language,
	}
}

// ReverseGeocode performs a single SearchPlaceIndexForPosition call.
func (p *AWSProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*Place, error) {
	out, err := p.client.SearchPlaceIndexForPosition(ctx, &location.SearchPlaceIndexForPositionInput{
		IndexName:  aws.String(p.placeIndex),
		Position:   []float64{lon, lat},
		MaxResults: aws.Int32(p.maxResults),
		Language:   aws.String(p.language),
	})
	if err != nil {
		return nil, fmt.Errorf("geocode: search position: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	pl := out.Results[0].Place
	if pl == nil {
		return nil, nil
	}
	return &Place{
		Label:        aws.ToString(pl.Label),
		Country:      aws.ToString(pl.Country),
		Region:       aws.ToString(pl.Region),
		SubRegion:    aws.ToString(pl.SubRegion),
		Municipality: aws.ToString(pl.Municipality),
		Neighborhood: aws.ToString(pl.Neighborhood),
		PostalCode:   aws.ToString(pl.PostalCode),
		Street:       aws.ToString(pl.Street),
	}, nil
}
