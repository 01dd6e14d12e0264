// Package hotspot assembles the fire-detection report: FIRMS detections,
// reverse geocoded to municipalities and ranked.
package hotspot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
)

// geocodeLimit caps concurrent reverse geocoding lookups.
const geocodeLimit = 5

// Source returns the detections inside an area.
type Source interface {
	FetchHotspots(ctx context.Context, area domain.Area, days int) ([]domain.Hotspot, error)
}

// Service builds hotspot reports.
type Service struct {
	source   Source
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewService creates a Service. A nil geocoder leaves hotspots without
// municipalities and the ranking empty.
func NewService(source Source, geocoder domain.Geocoder, logger *slog.Logger) *Service {
	return &Service{source: source, geocoder: geocoder, logger: logger}
}

// Report returns the hotspots of the last days days inside area.
func (s *Service) Report(ctx context.Context, area domain.Area, days int) (domain.HotspotReport, error) {
	hotspots, err := s.source.FetchHotspots(ctx, area, days)
	if err != nil {
		return domain.HotspotReport{}, fmt.Errorf("hotspots %s: %w", area, err)
	}
	domain.EnrichHotspots(ctx, hotspots, s.geocoder, geocodeLimit, s.logger)

	ranking := domain.RankMunicipalities(hotspots)
	s.logger.Debug("hotspot report built", "area", area.String(), "days", days, "hotspots", len(hotspots), "municipalities", len(ranking))
	return domain.HotspotReport{
		Area:     area,
		Days:     days,
		Total:    len(hotspots),
		Hotspots: hotspots,
		Ranking:  ranking,
	}, nil
}
