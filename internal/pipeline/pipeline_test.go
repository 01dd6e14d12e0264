package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
	"github.com/couchcryptid/hydro-monitor-service/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]bool
}

func (m *mockSource) GetStateDailyMunicipalMeans(_ context.Context, uf string, days int, includeToday bool) (domain.DailyMeansReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, uf)
	if m.failFor[uf] {
		return domain.DailyMeansReport{}, errors.New("upstream down")
	}
	return domain.DailyMeansReport{State: uf, Days: days, Series: []domain.SeriesPoint{{Date: "2025-09-14", Mean: 1}}}, nil
}

type mockLoader struct {
	mu       sync.Mutex
	failures int
	attempts int
	loaded   [][]domain.DailyMeansReport
}

func (m *mockLoader) LoadBatch(_ context.Context, reports []domain.DailyMeansReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, reports)
	return nil
}

func (m *mockLoader) snapshot() (attempts int, loaded [][]domain.DailyMeansReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts, append([][]domain.DailyMeansReport(nil), m.loaded...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func start(t *testing.T, r *pipeline.Refresher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

// --- tests ---

func TestRefresher_PublishesOncePerCycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &mockSource{}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	r := pipeline.New(src, ldr, []string{"MT", "MS"}, 7, 15*time.Minute, clock, discardLogger(), metrics)

	require.Error(t, r.CheckReadiness(context.Background()))
	cancel, done := start(t, r)

	blockUntil(t, clock) // waiting for the next interval
	_, loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0], 2)
	assert.Equal(t, "MT", loaded[0][0].State)
	assert.Equal(t, 7, loaded[0][0].Days)
	require.NoError(t, r.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefresherActive))

	clock.Advance(15 * time.Minute)
	require.Eventually(t, func() bool {
		_, loaded := ldr.snapshot()
		return len(loaded) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RefreshCycles.WithLabelValues("success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ReportsProduced))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RefresherActive))
}

func TestRefresher_BacksOffOnLoadFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ldr := &mockLoader{failures: 2}
	metrics := observability.NewMetricsForTesting()
	r := pipeline.New(&mockSource{}, ldr, []string{"MT"}, 3, time.Hour, clock, discardLogger(), metrics)
	start(t, r)

	blockUntil(t, clock)
	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool { a, _ := ldr.snapshot(); return a == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Error(t, r.CheckReadiness(context.Background()))

	blockUntil(t, clock)
	clock.Advance(399 * time.Millisecond)
	attempts, _ := ldr.snapshot()
	assert.Equal(t, 2, attempts, "second backoff is 400ms")
	clock.Advance(time.Millisecond)

	require.Eventually(t, func() bool {
		return r.CheckReadiness(context.Background()) == nil
	}, 2*time.Second, 5*time.Millisecond)
	attempts, loaded := ldr.snapshot()
	assert.Equal(t, 3, attempts)
	assert.Len(t, loaded, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RefreshCycles.WithLabelValues("error")))
}

func TestRefresher_SkipsFailingStates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ldr := &mockLoader{}
	r := pipeline.New(&mockSource{failFor: map[string]bool{"MS": true}}, ldr, []string{"MT", "MS", "GO"}, 3, time.Hour, clock, discardLogger(), observability.NewMetricsForTesting())
	start(t, r)

	blockUntil(t, clock)
	_, loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0], 2)
	assert.Equal(t, "GO", loaded[0][1].State)
}

func TestRefresher_AllStatesFailingLoadsNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	r := pipeline.New(&mockSource{failFor: map[string]bool{"MT": true}}, ldr, []string{"MT"}, 3, time.Hour, clock, discardLogger(), metrics)
	start(t, r)

	blockUntil(t, clock)
	attempts, _ := ldr.snapshot()
	assert.Zero(t, attempts)
	assert.Error(t, r.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshCycles.WithLabelValues("error")))
}

func TestRefresher_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := pipeline.New(&mockSource{}, &mockLoader{failures: 100}, []string{"MT"}, 3, time.Hour, clockwork.NewFakeClock(), discardLogger(), observability.NewMetricsForTesting())

	require.NoError(t, r.Run(ctx))
}

func TestLogLoader(t *testing.T) {
	var buf bytes.Buffer
	l := pipeline.LogLoader{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, l.LoadBatch(context.Background(), []domain.DailyMeansReport{
		{State: "MT", Series: []domain.SeriesPoint{{Date: "2025-09-14", Mean: 10}}},
		{State: "MS"},
	}))
	assert.Contains(t, buf.String(), "uf=MT points=1 latest_date=2025-09-14 latest_mean=10")
	assert.Contains(t, buf.String(), "uf=MS points=0")
}
