package domain

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// EnrichHotspot attaches the municipality containing a hotspot.
// If geocoder is nil or geocoding fails, the hotspot is returned with
// GeoSource set accordingly (graceful degradation).
func EnrichHotspot(ctx context.Context, h Hotspot, geocoder Geocoder, logger *slog.Logger) Hotspot {
	if geocoder == nil {
		return h
	}

	result, err := geocoder.ReverseGeocode(ctx, h.Latitude, h.Longitude)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", h.Latitude,
			"lon", h.Longitude,
			"error", err,
		)
		h.GeoSource = "failed"
		return h
	}
	if result.Municipality == "" {
		h.GeoSource = "original"
		return h
	}
	h.Municipality = result.Municipality
	h.State = result.State
	h.GeoSource = "reverse"
	return h
}

// EnrichHotspots geocodes hotspots in place with at most limit lookups in
// flight.
func EnrichHotspots(ctx context.Context, hotspots []Hotspot, geocoder Geocoder, limit int, logger *slog.Logger) {
	if geocoder == nil || len(hotspots) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i := range hotspots {
		g.Go(func() error {
			hotspots[i] = EnrichHotspot(ctx, hotspots[i], geocoder, logger)
			return nil
		})
	}
	_ = g.Wait()
}
