//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	// Cuiabá, MT
	result, err := c.ReverseGeocode(context.Background(), -15.601, -56.097)
	require.NoError(t, err)

	assert.Equal(t, "Cuiabá", result.Municipality)
	assert.Equal(t, "MT", result.State)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestSmoke_ReverseGeocode_Ocean(t *testing.T) {
	c := smokeClient(t)

	// South Atlantic: no municipality, no error.
	result, err := c.ReverseGeocode(context.Background(), -30, -20)
	require.NoError(t, err)
	assert.Empty(t, result.Municipality)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	cached, err := NewCachedGeocoder(smokeClient(t), 10, observability.NewMetricsForTesting())
	require.NoError(t, err)

	r1, err := cached.ReverseGeocode(context.Background(), -11.864, -55.503)
	require.NoError(t, err)
	assert.Equal(t, "Sinop", r1.Municipality)

	r2, err := cached.ReverseGeocode(context.Background(), -11.864, -55.503)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
