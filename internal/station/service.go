// Package station serves the station directory: inventory filtering,
// whitelist/blacklist handling and the batched history fan-out.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

// ErrStationNotFound is returned by GetStation for an unknown or excluded code.
var ErrStationNotFound = fmt.Errorf("station %w", domain.ErrNotFound)

// HistoryGetter fetches one station's history. It never fails; errors are
// reported in the returned History.
type HistoryGetter interface {
	GetHistory(ctx context.Context, stationCode, dateFilterType, date, interval string) domain.History
}

// Query selects stations and, optionally, their histories.
type Query struct {
	Filters        domain.StationFilters `json:"filtros"`
	IncludeHistory bool                  `json:"incluirHistorico"`
	DateFilterType string                `json:"tipoFiltroData,omitempty"`
	Date           string                `json:"dataBusca,omitempty"`
	Interval       string                `json:"intervalo,omitempty"`
}

// Validate checks that a history query names every history parameter.
func (q Query) Validate() error {
	if !q.IncludeHistory {
		return nil
	}
	if q.DateFilterType == "" || q.Date == "" || q.Interval == "" {
		return &domain.ValidationError{Field: "incluirHistorico", Message: "tipoFiltroData, dataBusca and intervalo are required with history"}
	}
	return nil
}

func (q Query) key() string {
	q.Filters = q.Filters.Normalize()
	if !q.IncludeHistory {
		q.DateFilterType, q.Date, q.Interval = "", "", ""
	}
	b, _ := json.Marshal(q) // plain strings and bools only
	return string(b)
}

// Result is the answer to GetStationsData.
type Result struct {
	Stations []domain.Station `json:"estacoes"`
}

// Config sizes the history fan-out.
type Config struct {
	BatchSize            int
	MaxConcurrentBatches int
}

// Service answers station directory queries. Identical concurrent queries
// share one computation and receive the same *Result.
type Service struct {
	inventory *Inventory
	lists     *Lists
	history   HistoryGetter
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics

	inflight singleflight.Group
}

// NewService creates a Service.
func NewService(inventory *Inventory, lists *Lists, history HistoryGetter, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 15
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 5
	}
	return &Service{
		inventory: inventory,
		lists:     lists,
		history:   history,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// GetStationsData returns the stations matching q, with histories attached
// when q.IncludeHistory is set.
func (s *Service) GetStationsData(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	// The shared computation must not be cut short by whichever caller started it.
	workCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(q.key(), func() (any, error) {
		return s.compute(workCtx, q)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetStation returns a single station by code.
func (s *Service) GetStation(ctx context.Context, code string, q Query) (*domain.Station, error) {
	q.Filters.Code = code
	res, err := s.GetStationsData(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Stations) == 0 {
		return nil, ErrStationNotFound
	}
	st := res.Stations[0]
	return &st, nil
}

func (s *Service) compute(ctx context.Context, q Query) (*Result, error) {
	stations, err := s.selectStations(ctx, q.Filters)
	if err != nil {
		return nil, err
	}
	if q.IncludeHistory && len(stations) > 0 {
		s.attachHistories(ctx, stations, q)
	}
	return &Result{Stations: stations}, nil
}

func (s *Service) selectStations(ctx context.Context, filters domain.StationFilters) ([]domain.Station, error) {
	records, err := s.inventory.Load(ctx)
	if err != nil {
		return nil, err
	}
	whitelist, blacklist, err := s.lists.Load()
	if err != nil {
		return nil, err
	}

	normalized := filters.Normalize()
	stations := []domain.Station{}
	for _, r := range records {
		if !r.IsOperating() || !normalized.Match(r) {
			continue
		}
		code := string(r.Code)
		if blacklist.Has(code) {
			continue
		}
		// An empty whitelist places no restriction.
		if len(whitelist) > 0 && !whitelist.Has(code) {
			continue
		}
		stations = append(stations, r.Reduce())
	}
	return stations, nil
}

type fanoutCounters struct {
	queried, withItems, sameDay, errored atomic.Int64
}

// attachHistories fetches every station's history in batches, at most
// MaxConcurrentBatches at a time, with the stations of a batch in parallel.
func (s *Service) attachHistories(ctx context.Context, stations []domain.Station, q Query) {
	start := time.Now()
	var counters fanoutCounters

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrentBatches)
	for lo := 0; lo < len(stations); lo += s.cfg.BatchSize {
		batch := stations[lo:min(lo+s.cfg.BatchSize, len(stations))]
		g.Go(func() error {
			var wg sync.WaitGroup
			for i := range batch {
				wg.Add(1)
				go func(st *domain.Station) {
					defer wg.Done()
					h := s.history.GetHistory(ctx, st.Code, q.DateFilterType, q.Date, q.Interval)
					st.History = &h
					counters.queried.Add(1)
					switch {
					case h.Failed():
						counters.errored.Add(1)
					case len(h.Items) > 0:
						counters.withItems.Add(1)
						if h.HasRecordOn(q.Date) {
							counters.sameDay.Add(1)
						}
					}
				}(&batch[i])
			}
			wg.Wait()
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.FanoutDuration.Observe(time.Since(start).Seconds())
	s.metrics.FanoutStations.WithLabelValues("queried").Add(float64(counters.queried.Load()))
	s.metrics.FanoutStations.WithLabelValues("with_items").Add(float64(counters.withItems.Load()))
	s.metrics.FanoutStations.WithLabelValues("same_day").Add(float64(counters.sameDay.Load()))
	s.metrics.FanoutStations.WithLabelValues("errored").Add(float64(counters.errored.Load()))
	s.logger.Info("station histories fetched",
		"stations", len(stations),
		"queried", counters.queried.Load(),
		"with_items", counters.withItems.Load(),
		"same_day", counters.sameDay.Load(),
		"errored", counters.errored.Load(),
		"date", q.Date,
		"interval", q.Interval,
		"duration", time.Since(start),
	)
}

// IsNotFound reports whether err means nothing matched.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
