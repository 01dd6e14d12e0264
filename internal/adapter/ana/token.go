package ana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

// ExpiryBuffer is how long before expiry a token stops being reused.
const ExpiryBuffer = 10 * time.Minute

const authPath = "/OAUth/v1"

// Credentials identify the service to the hydrology API.
type Credentials struct {
	Identifier string
	Password   string
}

// Claims are the token fields the cache cares about, in Unix seconds.
type Claims struct {
	IssuedAt  int64 `json:"iat"`
	ExpiresAt int64 `json:"exp"`
}

// TokenStatus is a snapshot of the cached token, without the token itself.
type TokenStatus struct {
	Valid     bool       `json:"token_valido"`
	IssuedAt  *time.Time `json:"emitido_em,omitempty"`
	ExpiresAt *time.Time `json:"expira_em,omitempty"`
	RenewsAt  *time.Time `json:"renova_em,omitempty"`
}

// TokenCache owns the bearer token for the hydrology API. Concurrent callers
// needing a refresh share a single upstream call.
type TokenCache struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu         sync.RWMutex
	token      string
	claims     Claims
	expiration time.Time

	flight singleflight.Group
}

// NewTokenCache creates a TokenCache for the API rooted at baseURL.
func NewTokenCache(baseURL string, creds Credentials, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *TokenCache {
	return &TokenCache{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Init authenticates eagerly. Only configuration errors are returned as
// fatal; other failures are logged and retried on first use.
func (c *TokenCache) Init(ctx context.Context) error {
	_, err := c.Authenticate(ctx)
	if err == nil {
		return nil
	}
	if authErr, ok := asAuthError(err); ok && authErr.Kind == AuthConfig {
		return err
	}
	c.logger.Warn("initial hydrology authentication failed", "error", err)
	return nil
}

// Authenticate returns a usable bearer token, refreshing it only when the
// cached one is missing or inside the expiry buffer.
func (c *TokenCache) Authenticate(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	// The refresh outlives any single caller; it is bounded by the HTTP client timeout.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.refresh(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Get returns the current token status without any network call.
func (c *TokenCache) Get() TokenStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return TokenStatus{}
	}
	issued := time.Unix(c.claims.IssuedAt, 0).UTC()
	expires := c.expiration.UTC()
	renews := expires.Add(-ExpiryBuffer)
	return TokenStatus{
		Valid:     c.clock.Now().Before(renews),
		IssuedAt:  &issued,
		ExpiresAt: &expires,
		RenewsAt:  &renews,
	}
}

// Invalidate drops the cached token so the next call re-authenticates.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.claims = Claims{}
	c.expiration = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" && c.clock.Now().Before(c.expiration.Add(-ExpiryBuffer)) {
		return c.token, true
	}
	return "", false
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	token, claims, err := c.requestToken(ctx)
	if err != nil {
		c.metrics.AuthRefreshes.WithLabelValues("error").Inc()
		return "", err
	}
	expiration := time.UnixMilli(claims.ExpiresAt * 1000)

	c.mu.Lock()
	c.token = token
	c.claims = claims
	c.expiration = expiration
	c.mu.Unlock()

	c.metrics.AuthRefreshes.WithLabelValues("success").Inc()
	c.logger.Info("hydrology token refreshed", "expires_at", expiration.UTC())
	return token, nil
}

type authResponse struct {
	Items struct {
		Token string `json:"tokenautenticacao"`
	} `json:"items"`
}

func (c *TokenCache) requestToken(ctx context.Context) (string, Claims, error) {
	if c.creds.Identifier == "" || c.creds.Password == "" {
		return "", Claims{}, &AuthError{Kind: AuthConfig, Status: http.StatusInternalServerError, Message: "missing hydrology API credentials", Err: ErrMissingCredentials}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+authPath, http.NoBody)
	if err != nil {
		return "", Claims{}, &AuthError{Kind: AuthFailed, Status: http.StatusBadGateway, Message: "build auth request", Err: err}
	}
	req.Header.Set("Identificador", c.creds.Identifier)
	req.Header.Set("Senha", c.creds.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Claims{}, classifyAuthTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", Claims{}, classifyAuthTransport(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", Claims{}, classifyAuthStatus(resp.StatusCode, snippet(body))
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Claims{}, &AuthError{Kind: AuthFailed, Status: http.StatusBadGateway, Message: "unreadable auth response", Detail: err.Error(), Err: err}
	}
	token := strings.TrimSpace(parsed.Items.Token)
	if token == "" {
		return "", Claims{}, &AuthError{Kind: AuthMissingToken, Status: http.StatusBadGateway, Message: "auth response has no tokenautenticacao"}
	}

	claims, err := DecodeClaims(token)
	if err != nil {
		return "", Claims{}, &AuthError{Kind: AuthFailed, Status: http.StatusBadGateway, Message: "token claims unreadable", Detail: err.Error(), Err: err}
	}
	return token, claims, nil
}

// DecodeClaims reads iat and exp from a JWT-shaped token without verifying it.
func DecodeClaims(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, &DecodeError{Reason: fmt.Sprintf("expected 3 segments, got %d", len(parts))}
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Claims{}, &DecodeError{Reason: "payload is not base64url", Err: err}
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, &DecodeError{Reason: "payload is not JSON", Err: err}
	}
	if claims.ExpiresAt == 0 {
		return Claims{}, &DecodeError{Reason: "payload has no exp"}
	}
	return claims, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

func asAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	ok := errors.As(err, &authErr)
	return authErr, ok
}
