package statistics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/station"
)

// historyWindow is always fetched in full so trailing days can be backfilled
// whatever the requested day count.
const historyWindow = "DIAS_14"


// StationSource returns stations with their histories.
type StationSource interface {
	GetStationsData(ctx context.Context, q station.Query) (*station.Result, error)
}

// Aggregator computes per-state daily municipal rain means.
type Aggregator struct {
	stations       StationSource
	clock          clockwork.Clock
	loc            *time.Location
	summaryEnabled bool
	logger         *slog.Logger
}

// NewAggregator creates an Aggregator. "Today" is evaluated in loc.
func NewAggregator(stations StationSource, clock clockwork.Clock, loc *time.Location, summaryEnabled bool, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		stations:       stations,
		clock:          clock,
		loc:            loc,
		summaryEnabled: summaryEnabled,
		logger:         logger,
	}
}

// GetStateDailyMunicipalMeans builds the trailing days-day rain series for a
// state. The state mean of a day is the unweighted mean of its municipal
// means, each of which is the mean of its stations' daily totals.
func (a *Aggregator) GetStateDailyMunicipalMeans(ctx context.Context, uf string, days int, includeToday bool) (domain.DailyMeansReport, error) {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if len(uf) != 2 {
		return domain.DailyMeansReport{}, &domain.ValidationError{Field: "uf", Message: fmt.Sprintf("%q is not a state code", uf)}
	}
	// Larger day counts are accepted; the series is bounded by the history window.
	if days < 1 {
		return domain.DailyMeansReport{}, &domain.ValidationError{Field: "dias", Message: "must be at least 1"}
	}

	now := a.clock.Now()
	today := now.In(a.loc).Format(domain.DateLayout)
	res, err := a.stations.GetStationsData(ctx, station.Query{
		Filters:        domain.StationFilters{State: uf},
		IncludeHistory: true,
		DateFilterType: domain.FilterReadingDate,
		Date:           today,
		Interval:       historyWindow,
	})
	if err != nil {
		return domain.DailyMeansReport{}, fmt.Errorf("stations for %s: %w", uf, err)
	}

	report := domain.DailyMeansReport{
		State:       uf,
		Days:        days,
		GeneratedAt: now.UTC(),
		Series:      dailySeries(res.Stations, today, days, includeToday),
	}
	if a.summaryEnabled {
		s := summarize(res.Stations, today)
		report.Summary = &s
	}
	a.logger.Debug("daily means computed", "uf", uf, "days", days, "stations", len(res.Stations), "points", len(report.Series))
	return report, nil
}

type municipality struct {
	name string
	// day -> station daily totals
	totals map[string][]float64
}

// dailyRain sums a station's rain per day, keyed by the leading date of the
// timestamp string.
func dailyRain(h *domain.History) map[string]float64 {
	out := make(map[string]float64)
	if h == nil || h.Failed() {
		return out
	}
	for _, m := range h.Items {
		if m.InvalidDate() {
			continue
		}
		day := domain.DayOf(m.MeasuredAt)
		if day == "" {
			continue
		}
		if v, ok := m.Float(domain.FieldRain); ok {
			out[day] += v
		}
	}
	return out
}

func dailySeries(stations []domain.Station, today string, days int, includeToday bool) []domain.SeriesPoint {
	municipalities := make(map[string]*municipality)
	var order []string
	allDays := make(map[string]struct{})

	for _, st := range stations {
		totals := dailyRain(st.History)
		if len(totals) == 0 {
			continue
		}
		key := domain.NormalizeText(st.Municipality)
		m, ok := municipalities[key]
		if !ok {
			m = &municipality{name: st.Municipality, totals: make(map[string][]float64)}
			municipalities[key] = m
			order = append(order, key)
		}
		for day, total := range totals {
			m.totals[day] = append(m.totals[day], total)
			allDays[day] = struct{}{}
		}
	}

	selected := make([]string, 0, len(allDays))
	for day := range allDays {
		if !includeToday && day == today {
			continue
		}
		selected = append(selected, day)
	}
	sort.Strings(selected)
	if len(selected) > days {
		selected = selected[len(selected)-days:]
	}
	sort.Strings(order)

	series := make([]domain.SeriesPoint, 0, len(selected))
	for _, day := range selected {
		var means []float64
		point := domain.SeriesPoint{Date: day, Municipalities: []domain.MunicipalityMean{}}
		for _, key := range order {
			m := municipalities[key]
			totals := m.totals[day]
			mean := Mean(totals)
			if mean == nil {
				continue
			}
			means = append(means, *mean)
			point.Municipalities = append(point.Municipalities, domain.MunicipalityMean{
				Municipality: m.name,
				Mean:         *domain.Round2(*mean),
				Stations:     len(totals),
			})
		}
		point.Mean = *domain.Round2(*Mean(means))
		series = append(series, point)
	}
	return series
}

func summarize(stations []domain.Station, today string) domain.DashboardSummary {
	type muniState struct {
		rain, anyData bool
	}
	munis := make(map[string]*muniState)
	var rainStations, levelStations, flowStations int

	for _, st := range stations {
		key := domain.NormalizeText(st.Municipality)
		ms, ok := munis[key]
		if !ok {
			ms = &muniState{}
			munis[key] = ms
		}
		if st.History == nil || st.History.Failed() {
			continue
		}
		var hasRain, hasLevel, hasFlow bool
		var rainToday float64
		for _, m := range st.History.Items {
			if m.InvalidDate() || domain.DayOf(m.MeasuredAt) != today {
				continue
			}
			if v, ok := m.Float(domain.FieldRain); ok {
				hasRain = true
				rainToday += v
			}
			if _, ok := m.Float(domain.FieldLevel); ok {
				hasLevel = true
			}
			if _, ok := m.Float(domain.FieldFlow); ok {
				hasFlow = true
			}
		}
		if hasRain {
			rainStations++
		}
		if hasLevel {
			levelStations++
		}
		if hasFlow {
			flowStations++
		}
		if hasRain || hasLevel || hasFlow {
			ms.anyData = true
		}
		if rainToday > 0 {
			ms.rain = true
		}
	}

	s := domain.DashboardSummary{
		Date:                    today,
		StationsVerified:        len(stations),
		MunicipalitiesMonitored: len(munis),
	}
	for _, ms := range munis {
		if ms.rain {
			s.MunicipalitiesWithRain++
		} else {
			s.MunicipalitiesWithoutRain++
		}
		if !ms.anyData {
			s.MunicipalitiesWithoutData++
		}
	}
	s.Coverage = domain.Coverage{
		Rain:  coverage(rainStations, len(stations)),
		Level: coverage(levelStations, len(stations)),
		Flow:  coverage(flowStations, len(stations)),
	}
	return s
}

func coverage(n, total int) domain.VariableCoverage {
	c := domain.VariableCoverage{Stations: n}
	if total > 0 {
		c.Percent = *domain.Round2(float64(n) / float64(total) * 100)
	}
	return c
}
