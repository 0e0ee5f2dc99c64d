package calendar

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/mirakessler/nudge/pkg/logx"
)

// GoogleMapsEstimator implements TravelEstimator against the Google
// Maps Directions API, requesting a single driving-mode route and
// returning its duration rounded to the nearest minute.
type GoogleMapsEstimator struct {
	client *maps.Client
	perf   *logx.PerformanceLogger
}

// NewGoogleMapsEstimator creates an estimator backed by the given API key.
// perf may be nil, in which case Directions calls go untimed.
func NewGoogleMapsEstimator(apiKey string, perf *logx.PerformanceLogger) (*GoogleMapsEstimator, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleMapsEstimator{client: client, perf: perf}, nil
}

// EstimateTravelMinutes returns the driving duration from origin to
// destination, rounded to the nearest minute.
func (g *GoogleMapsEstimator) EstimateTravelMinutes(ctx context.Context, origin, destination string) (int, error) {
	started := time.Now()
	routes, _, err := g.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeDriving,
	})
	if g.perf != nil {
		status := 200
		if err != nil {
			status = 502
		}
		g.perf.LogAPIPerformance("maps.directions", "GET", time.Since(started), status, err)
	}
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found from %q to %q", origin, destination)
	}
	return int(routes[0].Legs[0].Duration.Round(time.Minute).Minutes()), nil
}
