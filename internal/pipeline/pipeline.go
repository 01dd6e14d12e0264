package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ReportSource computes a state's daily means report.
type ReportSource interface {
	GetStateDailyMunicipalMeans(ctx context.Context, uf string, days int, includeToday bool) (domain.DailyMeansReport, error)
}

// ReportLoader writes a batch of reports to the destination.
type ReportLoader interface {
	LoadBatch(ctx context.Context, reports []domain.DailyMeansReport) error
}

// Refresher periodically recomputes the reports of a fixed set of states and
// hands them to a loader.
type Refresher struct {
	source   ReportSource
	loader   ReportLoader
	states   []string
	days     int
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
}

// New creates a Refresher.
func New(source ReportSource, loader ReportLoader, states []string, days int, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		source:   source,
		loader:   loader,
		states:   states,
		days:     days,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a full cycle has been loaded.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("refresher has not completed a cycle yet")
	}
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started", "states", r.states, "days", r.days, "interval", r.interval)
	r.metrics.RefresherActive.Set(1)
	defer r.metrics.RefresherActive.Set(0)

	for {
		if !r.cycle(ctx) {
			break
		}
		if !sleepWithContext(ctx, r.clock, r.interval) {
			break
		}
	}
	r.logger.Info("refresher stopping", "reason", ctx.Err())
	return nil
}

// cycle computes every state and loads the batch, retrying the load with
// exponential backoff. Returns false if the refresher should stop.
func (r *Refresher) cycle(ctx context.Context) bool {
	reports := make([]domain.DailyMeansReport, 0, len(r.states))
	for _, uf := range r.states {
		report, err := r.source.GetStateDailyMunicipalMeans(ctx, uf, r.days, true)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			r.logger.Error("report refresh failed", "uf", uf, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	if len(reports) == 0 {
		r.metrics.RefreshCycles.WithLabelValues("error").Inc()
		return ctx.Err() == nil
	}

	backoff := initialBackoff
	for {
		err := r.loader.LoadBatch(ctx, reports)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return false
		}
		r.metrics.RefreshCycles.WithLabelValues("error").Inc()
		r.logger.Error("load reports failed", "error", err, "reports", len(reports), "retry_in", backoff)
		if !sleepWithContext(ctx, r.clock, backoff) {
			return false
		}
		backoff = nextBackoff(backoff)
	}

	r.metrics.RefreshCycles.WithLabelValues("success").Inc()
	r.metrics.ReportsProduced.Add(float64(len(reports)))
	r.ready.Store(true)
	return true
}

func nextBackoff(current time.Duration) time.Duration {
	return min(current*2, maxBackoff)
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// LogLoader logs reports instead of publishing them. It stands in for Kafka
// when no brokers are configured.
type LogLoader struct {
	Logger *slog.Logger
}

func (l LogLoader) LoadBatch(_ context.Context, reports []domain.DailyMeansReport) error {
	for _, rep := range reports {
		args := []any{"uf", rep.State, "points", len(rep.Series)}
		if n := len(rep.Series); n > 0 {
			last := rep.Series[n-1]
			args = append(args, "latest_date", last.Date, "latest_mean", last.Mean)
		}
		l.Logger.Info("report refreshed", args...)
	}
	return nil
}
