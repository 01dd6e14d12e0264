// Package history fetches and normalizes one station's telemetry series.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/ana"
	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

// freshness is how recent a reading must be for a station queried for today
// to count as updated.
const freshness = 60 * time.Minute

// Source returns the raw items of a history query.
type Source interface {
	FetchHistory(ctx context.Context, r ana.HistoryRequest) (json.RawMessage, error)
}

// Fetcher turns upstream history payloads into domain.History values.
type Fetcher struct {
	source   Source
	clock    clockwork.Clock
	tzOffset int
	loc      *time.Location
	dedup    *observability.DedupLogger
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewFetcher creates a Fetcher reading timestamps at tzOffsetMinutes from UTC.
func NewFetcher(source Source, tzOffsetMinutes int, clock clockwork.Clock, dedup *observability.DedupLogger, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		source:   source,
		clock:    clock,
		tzOffset: tzOffsetMinutes,
		loc:      domain.FixedZone(tzOffsetMinutes),
		dedup:    dedup,
		logger:   logger,
		metrics:  metrics,
	}
}

// Location is the zone station timestamps are read in.
func (f *Fetcher) Location() *time.Location { return f.loc }

// Today is the current local date.
func (f *Fetcher) Today() string { return f.clock.Now().In(f.loc).Format(domain.DateLayout) }

// GetHistory never fails: errors come back as a History with StatusError.
func (f *Fetcher) GetHistory(ctx context.Context, stationCode, dateFilterType, date, interval string) domain.History {
	h, err := f.fetch(ctx, stationCode, dateFilterType, date, interval)
	if err != nil {
		f.metrics.HistoryFetch.WithLabelValues("error").Inc()
		f.logFailure(stationCode, err)
		return domain.FailedHistory(stationCode, err.Error())
	}
	f.metrics.HistoryFetch.WithLabelValues("success").Inc()
	return h
}

func (f *Fetcher) fetch(ctx context.Context, stationCode, dateFilterType, date, interval string) (domain.History, error) {
	if err := domain.ValidateHistoryParams(stationCode, dateFilterType, date, interval); err != nil {
		return domain.History{}, err
	}

	raw, err := f.source.FetchHistory(ctx, ana.HistoryRequest{
		StationCode:    stationCode,
		DateFilterType: dateFilterType,
		Date:           date,
		Interval:       interval,
	})
	if err != nil {
		return domain.History{}, err
	}

	records, err := domain.NormalizeRecords(raw)
	if err != nil {
		return domain.History{}, err
	}
	domain.SortByMeasurementDate(records, f.loc)

	h := domain.History{
		StationCode:    stationCode,
		DateFilterType: dateFilterType,
		Date:           date,
		Interval:       interval,
		Items:          records,
	}
	if total := domain.SumRain(records); total != nil {
		relative := domain.Accumulate(records, domain.AccumulationOptions{TZOffsetMinutes: f.tzOffset, Mode: domain.ModeRelative})
		calendar := domain.Accumulate(records, domain.AccumulationOptions{TZOffsetMinutes: f.tzOffset, Mode: domain.ModeCalendar})
		h.RainTotal = total
		h.RelativeWindows = relative.Windows
		h.CalendarWindows = calendar.Windows
	}
	h.Status = f.status(records, date)
	return h, nil
}

func (f *Fetcher) status(records []domain.Measurement, date string) domain.StationStatus {
	now := f.clock.Now().In(f.loc)
	today := now.Format(domain.DateLayout)

	switch {
	case date == today:
		for _, r := range records {
			if r.InvalidDate() || r.MeasuredAt == nil {
				continue
			}
			ts, ok := domain.ParseTimestamp(*r.MeasuredAt, f.loc)
			if ok && !ts.After(now) && !ts.Before(now.Add(-freshness)) {
				return domain.StatusUpdated
			}
		}
	case date < today:
		for _, r := range records {
			if r.InvalidDate() || r.MeasuredAt == nil {
				continue
			}
			if ts, ok := domain.ParseTimestamp(*r.MeasuredAt, f.loc); ok && ts.Format(domain.DateLayout) == date {
				return domain.StatusUpdated
			}
		}
	}
	return domain.StatusOutdated
}

func (f *Fetcher) logFailure(stationCode string, err error) {
	category := ana.Category(err)
	if domain.IsValidation(err) {
		category = "validation"
	}
	f.dedup.Warn(category, "station history fetch failed", "station", stationCode, "error", err)
}
