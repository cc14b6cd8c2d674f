// Package geocode wraps the reverse-geocoding capability: resolving a
// coordinate to a human-readable address label plus its components.
// The enrich stage depends on the Client, which layers the retry
// policy over any Provider; production wires the AWS Location
// provider, optionally behind the redis cache.
package geocode

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/model"
)

// Place is one reverse-geocode result.
type Place struct {
	Label        string `json:"label,omitempty"`
	Country      string `json:"country,omitempty"`
	Region       string `json:"region,omitempty"`
	SubRegion    string `json:"subregion,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Street       string `json:"street,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Info converts the place components to the wire PlaceInfo, label
// excluded.
func (p *Place) Info() model.PlaceInfo {
	return model.PlaceInfo{
		Country:      p.Country,
		Region:       p.Region,
		SubRegion:    p.SubRegion,
		Municipality: p.Municipality,
		Neighborhood: p.Neighborhood,
		PostalCode:   p.PostalCode,
		Street:       p.Street,
		Name:         p.Name,
	}
}

// Provider performs a single reverse-geocode lookup. A (nil, nil)
// return means the service answered with no results.
type Provider interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*Place, error)
}

// ─── Retrying client ────────────────────────────────────────

// Default retry policy: 3 attempts with exponential backoff from 0.5s.
const (
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Client layers retry-with-exponential-backoff over a Provider.
// Exhausting the budget is not an error: lookups degrade to a null
// label, matching the pipeline's forward-progress policy.
type Client struct {
	provider Provider
	retries  int
	backoff  time.Duration
	log      zerolog.Logger
}

// NewClient wraps the provider with the default retry policy.
func NewClient(provider Provider, log zerolog.Logger) *Client {
	return &Client{
		provider: provider,
		retries:  DefaultRetries,
		backoff:  DefaultBackoff,
		log:      log,
	}
}

// WithRetryPolicy overrides the retry budget and base backoff.
func (c *Client) WithRetryPolicy(retries int, backoff time.Duration) *Client {
	c.retries = retries
	c.backoff = backoff
	return c
}

// Reverse resolves a coordinate, retrying transient failures. Returns
// nil when the budget is exhausted or the service has no result.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) *Place {
	delay := c.backoff
	for attempt := 0; attempt < c.retries; attempt++ {
		place, err := c.provider.ReverseGeocode(ctx, lat, lon)
		if err == nil {
			return place
		}
		c.log.Warn().Str("event", "reverse_geocode_retry").
			Int("attempt", attempt).Err(err).Send()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil
}
