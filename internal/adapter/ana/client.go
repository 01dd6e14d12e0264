package ana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const historyPath = "/HidroinfoanaSerieTelemetricaAdotada/v1"

// TokenSource yields bearer tokens. *TokenCache satisfies it.
type TokenSource interface {
	Authenticate(ctx context.Context) (string, error)
}

// HistoryRequest is one station history query.
type HistoryRequest struct {
	StationCode    string
	DateFilterType string
	Date           string
	Interval       string
}

// Client calls the hydrology history endpoint.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a Client authenticated by tokens.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchHistory returns the raw items payload of a history query: an array,
// a single object, or null.
func (c *Client) FetchHistory(ctx context.Context, r HistoryRequest) (json.RawMessage, error) {
	token, err := c.tokens.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("Código da Estação", r.StationCode)
	q.Set("Tipo Filtro Data", r.DateFilterType)
	q.Set("Data de Busca (yyyy-MM-dd)", r.Date)
	q.Set("Range Intervalo de busca", r.Interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+historyPath+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{NoResponse: true, Timeout: isTimeout(err), Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &APIError{NoResponse: true, Timeout: isTimeout(err), Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		return nil, &APIError{Status: resp.StatusCode, Message: snippet(body)}
	}
	return extractItems(body)
}

// extractItems unwraps {"items": ...}; any other object is itself the item.
func extractItems(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if body[0] != '{' {
		return json.RawMessage(body), nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &APIError{Status: http.StatusOK, Message: "malformed history response: " + err.Error(), Err: err}
	}
	if items, ok := envelope["items"]; ok {
		return items, nil
	}
	return json.RawMessage(body), nil
}
