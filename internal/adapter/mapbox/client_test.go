package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func cuiaba() response {
	return response{
		Features: []feature{{
			Center:    []float64{-56.0974, -15.601},
			PlaceName: "Cuiabá, Mato Grosso, Brasil",
			Text:      "Cuiabá",
			Relevance: 1,
			Context: []contextEntry{
				{ID: "region.9755", Text: "Mato Grosso", ShortCode: "BR-MT"},
				{ID: "country.8843", Text: "Brasil", ShortCode: "br"},
			},
		}},
	}
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/-56.100000,-15.600000.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, testToken, q.Get("access_token"))
		assert.Equal(t, "place", q.Get("types"))
		assert.Equal(t, "pt", q.Get("language"))
		assert.Equal(t, "1", q.Get("limit"))

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(cuiaba()))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	result, err := c.ReverseGeocode(context.Background(), -15.6, -56.1)
	require.NoError(t, err)

	assert.Equal(t, "Cuiabá", result.Municipality)
	assert.Equal(t, "MT", result.State)
	assert.Equal(t, "Cuiabá, Mato Grosso, Brasil", result.FormattedAddress)
	assert.Equal(t, -15.601, result.Lat)
	assert.Equal(t, -56.0974, result.Lon)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("success")))
}

func TestClient_ReverseGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	result, err := c.ReverseGeocode(context.Background(), -30, -20)
	require.NoError(t, err)
	assert.Empty(t, result.Municipality)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("empty")))
}

func TestClient_ReverseGeocode_NoRegionContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := cuiaba()
		resp.Features[0].Context = nil
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL, 5*time.Second).ReverseGeocode(context.Background(), -15.6, -56.1)
	require.NoError(t, err)
	assert.Equal(t, "Cuiabá", result.Municipality)
	assert.Empty(t, result.State)
}

func TestClient_ReverseGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.ReverseGeocode(context.Background(), -15.6, -56.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("error")))
}

func TestClient_ReverseGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 50*time.Millisecond).ReverseGeocode(context.Background(), -15.6, -56.1)
	require.Error(t, err)
}
