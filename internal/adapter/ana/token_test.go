package ana

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

var testCreds = Credentials{Identifier: "12345678900", Password: "segredo"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeToken(iat, exp time.Time) string {
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := enc.EncodeToString([]byte(fmt.Sprintf(`{"sub":"svc","iat":%d,"exp":%d}`, iat.Unix(), exp.Unix())))
	return header + "." + payload + ".signature"
}

// authServer answers auth calls with a token valid for ttl from clock.Now().
type authServer struct {
	*httptest.Server
	calls   atomic.Int32
	release chan struct{}
}

func newAuthServer(t *testing.T, clock clockwork.Clock, ttl time.Duration) *authServer {
	t.Helper()
	s := &authServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		assert.Equal(t, authPath, r.URL.Path)
		assert.Equal(t, testCreds.Identifier, r.Header.Get("Identificador"))
		assert.Equal(t, testCreds.Password, r.Header.Get("Senha"))
		if s.release != nil {
			<-s.release
		}
		now := clock.Now()
		fmt.Fprintf(w, `{"status":"OK","items":{"tokenautenticacao":%q}}`, makeToken(now, now.Add(ttl)))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestCache(baseURL string, clock clockwork.Clock) *TokenCache {
	return NewTokenCache(baseURL, testCreds, 5*time.Second, clock, discardLogger(), observability.NewMetricsForTesting())
}

func TestTokenCache_ReusesTokenUntilBuffer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC))
	srv := newAuthServer(t, clock, time.Hour)
	c := newTestCache(srv.URL, clock)

	first, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())

	clock.Advance(49 * time.Minute)
	again, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int32(1), srv.calls.Load())

	// inside the 10 minute buffer
	clock.Advance(2 * time.Minute)
	_, err = c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestTokenCache_SingleFlight(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC))
	srv := newAuthServer(t, clock, time.Hour)
	srv.release = make(chan struct{})
	c := newTestCache(srv.URL, clock)

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = c.Authenticate(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return srv.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // let the remaining callers join the flight
	close(srv.release)
	wg.Wait()

	assert.Equal(t, int32(1), srv.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
}

func TestTokenCache_FailureClearsFlight(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		now := time.Now()
		fmt.Fprintf(w, `{"items":{"tokenautenticacao":%q}}`, makeToken(now, now.Add(time.Hour)))
	}))
	defer srv.Close()
	c := newTestCache(srv.URL, clockwork.NewRealClock())

	_, err := c.Authenticate(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthFailed, authErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, authErr.Status)

	_, err = c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenCache_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    AuthKind
	}{
		{
			name:    "invalid credentials",
			handler: func(w http.ResponseWriter, _ *http.Request) { http.Error(w, "nope", http.StatusUnauthorized) },
			kind:    AuthInvalidCredentials,
		},
		{
			name:    "missing token field",
			handler: func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `{"items":{}}`) },
			kind:    AuthMissingToken,
		},
		{
			name:    "malformed token",
			handler: func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `{"items":{"tokenautenticacao":"abc"}}`) },
			kind:    AuthFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestCache(srv.URL, clockwork.NewRealClock()).Authenticate(context.Background())
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.kind, authErr.Kind)
		})
	}
}

func TestTokenCache_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	c := NewTokenCache(srv.URL, testCreds, 50*time.Millisecond, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting())

	_, err := c.Authenticate(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthTimeout, authErr.Kind)
	assert.Equal(t, "no-response", Category(err))
}

func TestTokenCache_MissingCredentials(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()
	c := NewTokenCache(srv.URL, Credentials{}, time.Second, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting())

	err := c.Init(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthConfig, authErr.Kind)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, "config:missing hydrology API credentials", Category(err))
}

func TestTokenCache_InitToleratesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.NoError(t, newTestCache(srv.URL, clockwork.NewRealClock()).Init(context.Background()))
}

func TestTokenCache_GetAndInvalidate(t *testing.T) {
	start := time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	srv := newAuthServer(t, clock, time.Hour)
	c := newTestCache(srv.URL, clock)

	assert.False(t, c.Get().Valid)

	_, err := c.Authenticate(context.Background())
	require.NoError(t, err)

	status := c.Get()
	assert.True(t, status.Valid)
	require.NotNil(t, status.ExpiresAt)
	assert.Equal(t, start.Add(time.Hour), *status.ExpiresAt)
	assert.Equal(t, start.Add(50*time.Minute), *status.RenewsAt)

	c.Invalidate()
	assert.False(t, c.Get().Valid)
	_, err = c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestDecodeClaims(t *testing.T) {
	iat := time.Unix(1757851200, 0)
	claims, err := DecodeClaims(makeToken(iat, iat.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, iat.Unix(), claims.IssuedAt)
	assert.Equal(t, iat.Add(time.Hour).Unix(), claims.ExpiresAt)

	padded := "a." + base64.URLEncoding.EncodeToString([]byte(`{"iat":1,"exp":2}`)) + ".c"
	claims, err = DecodeClaims(padded)
	require.NoError(t, err)
	assert.Equal(t, int64(2), claims.ExpiresAt)

	for _, bad := range []string{"", "a.b", "a.b.c.d", "a.!!!.c", "a." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".c"} {
		_, err := DecodeClaims(bad)
		var decErr *DecodeError
		assert.ErrorAs(t, err, &decErr, bad)
	}
}
