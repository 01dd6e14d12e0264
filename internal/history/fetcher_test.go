package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/ana"
	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

// --- mock source ---

type mockSource struct {
	mu       sync.Mutex
	payload  string
	err      error
	requests []ana.HistoryRequest
}

func (m *mockSource) FetchHistory(_ context.Context, r ana.HistoryRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, r)
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(m.payload), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 2025-09-14 10:30 in Brasília
var now = time.Date(2025, 9, 14, 13, 30, 0, 0, time.UTC)

func newTestFetcher(src Source, logger *slog.Logger) (*Fetcher, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewFetcher(src, -180, clockwork.NewFakeClockAt(now), observability.NewDedupLogger(logger, 16), logger, m), m
}

const samplePayload = `[
	{"Data_Hora_Medicao":"2025-09-14 10:00:00.0","Chuva_Adotada":"0,4","Cota_Adotada":"120","Vazao_Adotada":null,"Codigo":"x"},
	{"Data_Hora_Medicao":"2025-09-14 09:00:00.0","Chuva_Adotada":"1.6","Cota_Adotada":"119"},
	{"Data_Hora_Medicao":"","Chuva_Adotada":"9"}
]`

func TestGetHistory_NormalizesAndAccumulates(t *testing.T) {
	src := &mockSource{payload: samplePayload}
	f, m := newTestFetcher(src, discardLogger())

	h := f.GetHistory(context.Background(), "001", domain.FilterReadingDate, "2025-09-14", "HORA_24")

	assert.Equal(t, domain.StatusUpdated, h.Status)
	assert.Equal(t, "001", h.StationCode)
	require.Len(t, h.Items, 3)
	assert.True(t, h.Items[0].InvalidDate())
	assert.Equal(t, "2025-09-14 09:00:00.0", *h.Items[1].MeasuredAt)
	assert.Equal(t, "2025-09-14 10:00:00.0", *h.Items[2].MeasuredAt)

	require.NotNil(t, h.RainTotal)
	assert.Equal(t, 11.0, *h.RainTotal)
	require.Len(t, h.RelativeWindows, 1)
	assert.Equal(t, 2.0, *h.RelativeWindows[0].Total)
	require.Len(t, h.CalendarWindows, 1)

	require.Len(t, src.requests, 1)
	assert.Equal(t, ana.HistoryRequest{StationCode: "001", DateFilterType: domain.FilterReadingDate, Date: "2025-09-14", Interval: "HORA_24"}, src.requests[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryFetch.WithLabelValues("success")))
}

func TestGetHistory_NoRainLeavesAccumulationNull(t *testing.T) {
	f, _ := newTestFetcher(&mockSource{payload: `{"Data_Hora_Medicao":"2025-09-14 10:00:00.0","Cota_Adotada":"3"}`}, discardLogger())

	h := f.GetHistory(context.Background(), "001", domain.FilterReadingDate, "2025-09-14", "HORA_1")

	assert.Nil(t, h.RainTotal)
	assert.Nil(t, h.RelativeWindows)
	assert.Nil(t, h.CalendarWindows)
	require.Len(t, h.Items, 1)

	out, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"chuva_acumulada":null`)
}

func TestGetHistory_Status(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		payload string
		want    domain.StationStatus
	}{
		{"today fresh", "2025-09-14", `[{"Data_Hora_Medicao":"2025-09-14 09:45:00.0"}]`, domain.StatusUpdated},
		{"today stale", "2025-09-14", `[{"Data_Hora_Medicao":"2025-09-14 09:15:00.0"}]`, domain.StatusOutdated},
		{"today future reading", "2025-09-14", `[{"Data_Hora_Medicao":"2025-09-14 11:00:00.0"}]`, domain.StatusOutdated},
		{"past date matching", "2025-09-10", `[{"Data_Hora_Medicao":"2025-09-09 23:00:00.0"},{"Data_Hora_Medicao":"2025-09-10 00:00:00.0"}]`, domain.StatusUpdated},
		{"past date missing", "2025-09-10", `[{"Data_Hora_Medicao":"2025-09-09 23:00:00.0"}]`, domain.StatusOutdated},
		{"future date", "2025-09-20", `[{"Data_Hora_Medicao":"2025-09-14 10:00:00.0"}]`, domain.StatusOutdated},
		{"empty", "2025-09-14", `[]`, domain.StatusOutdated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newTestFetcher(&mockSource{payload: tt.payload}, discardLogger())
			h := f.GetHistory(context.Background(), "001", domain.FilterReadingDate, tt.date, "DIAS_2")
			assert.Equal(t, tt.want, h.Status)
		})
	}
}

func TestGetHistory_ValidationNeverHitsNetwork(t *testing.T) {
	src := &mockSource{payload: `[]`}
	f, _ := newTestFetcher(src, discardLogger())

	h := f.GetHistory(context.Background(), "001", domain.FilterReadingDate, "2025-09-14", "HORA_48")

	assert.True(t, h.Failed())
	assert.Contains(t, h.ErrorReason, "intervalo")
	assert.Empty(t, src.requests)
}

func TestGetHistory_ErrorShape(t *testing.T) {
	f, m := newTestFetcher(&mockSource{err: &ana.APIError{Status: 500, Message: "boom"}}, discardLogger())

	h := f.GetHistory(context.Background(), "001", domain.FilterReadingDate, "2025-09-14", "HORA_1")

	out, err := json.Marshal(h)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "ERRO", got["status_estacao"])
	assert.Equal(t, "001", got["codigo_estacao"])
	assert.Equal(t, "hydrology API returned 500: boom", got["motivo_erro"])
	assert.Equal(t, []any{}, got["items"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryFetch.WithLabelValues("error")))
}

func TestGetHistory_LogsEachCategoryOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	src := &mockSource{err: &ana.APIError{Status: 503, Message: "down"}}
	f, _ := newTestFetcher(src, logger)

	for _, code := range []string{"001", "002", "003"} {
		f.GetHistory(context.Background(), code, domain.FilterReadingDate, "2025-09-14", "HORA_1")
	}
	src.err = &ana.APIError{NoResponse: true, Message: "dial tcp: refused", Err: errors.New("refused")}
	f.GetHistory(context.Background(), "004", domain.FilterReadingDate, "2025-09-14", "HORA_1")

	assert.Equal(t, 2, strings.Count(buf.String(), "station history fetch failed"))
	assert.Contains(t, buf.String(), "category=status:503")
	assert.Contains(t, buf.String(), "category=no-response")
}

func TestGetHistory_EveryIntervalRoundTrips(t *testing.T) {
	src := &mockSource{payload: samplePayload}
	f, _ := newTestFetcher(src, discardLogger())

	for _, iv := range domain.Intervals {
		t.Run(iv, func(t *testing.T) {
			h := f.GetHistory(context.Background(), "001", domain.FilterUpdateDate, "2025-09-14", iv)
			assert.False(t, h.Failed(), h.ErrorReason)
			assert.Equal(t, iv, h.Interval)
			assert.Len(t, h.Items, 3)
			assert.NotNil(t, h.RainTotal)
		})
	}
}
