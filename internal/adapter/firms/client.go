// Package firms reads satellite fire detections from the NASA FIRMS area API.
package firms

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
)

// MaxDays is the widest day range the area API serves.
const MaxDays = 10

// maxBodyBytes bounds a single area response.
var maxBodyBytes int64 = 16 << 20

// ErrUnexpectedBody is returned when FIRMS answers with something other than
// a detection CSV, which is how it reports a bad map key.
var ErrUnexpectedBody = errors.New("firms: response is not a detection CSV")

// Cache stores raw responses between calls.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config holds the client settings.
type Config struct {
	BaseURL  string
	MapKey   string
	Source   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client fetches hotspots for a bounding box.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      Cache
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a FIRMS client. cache may be nil.
func NewClient(cfg Config, cache Cache, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchHotspots returns the detections inside area over the last days days.
func (c *Client) FetchHotspots(ctx context.Context, area domain.Area, days int) ([]domain.Hotspot, error) {
	if days < 1 || days > MaxDays {
		return nil, &domain.ValidationError{Field: "dias", Message: fmt.Sprintf("must be between 1 and %d", MaxDays)}
	}
	key := fmt.Sprintf("firms:%s:%s:%d", c.cfg.Source, area, days)

	if body, ok := c.cached(ctx, key); ok {
		c.metrics.FIRMSRequests.WithLabelValues("cached").Inc()
		return ParseCSV(bytes.NewReader(body))
	}

	body, err := c.get(ctx, area, days)
	if err != nil {
		c.metrics.FIRMSRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	hotspots, err := ParseCSV(bytes.NewReader(body))
	if err != nil {
		c.metrics.FIRMSRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.FIRMSRequests.WithLabelValues("success").Inc()

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("firms cache write failed", "key", key, "error", err)
		}
	}
	return hotspots, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("firms cache read failed", "key", key, "error", err)
		return nil, false
	}
	return body, ok
}

func (c *Client) get(ctx context.Context, area domain.Area, days int) ([]byte, error) {
	u := fmt.Sprintf("%s/%s/%s/%s/%d", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.MapKey, c.cfg.Source, area, days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redact(err, c.cfg.MapKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firms request: %w", redact(err, c.cfg.MapKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read firms response: %w", err)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, fmt.Errorf("firms response exceeds %d bytes", maxBodyBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firms API error: status %d: %s", resp.StatusCode, snippet(body))
	}
	return body, nil
}

// ParseCSV decodes a FIRMS area CSV. Columns are addressed by header name so
// both VIIRS (bright_ti4) and MODIS (brightness) products parse.
func ParseCSV(r io.Reader) ([]domain.Hotspot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedBody, err)
	}
	if len(all) == 0 {
		return []domain.Hotspot{}, nil
	}

	col := make(map[string]int, len(all[0]))
	for i, h := range all[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["latitude"]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedBody, snippet([]byte(strings.Join(all[0], ","))))
	}
	field := func(row []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	out := make([]domain.Hotspot, 0, len(all)-1)
	for _, row := range all[1:] {
		lat, err1 := strconv.ParseFloat(field(row, "latitude"), 64)
		lon, err2 := strconv.ParseFloat(field(row, "longitude"), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, domain.Hotspot{
			Latitude:   lat,
			Longitude:  lon,
			Brightness: optFloat(field(row, "bright_ti4", "brightness")),
			FRP:        optFloat(field(row, "frp")),
			Date:       field(row, "acq_date"),
			Time:       clockTime(field(row, "acq_time")),
			Confidence: field(row, "confidence"),
			DayNight:   field(row, "daynight"),
			Satellite:  field(row, "satellite"),
		})
	}
	return out, nil
}

func optFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// clockTime turns FIRMS "412" or "0412" into "04:12".
func clockTime(s string) string {
	if len(s) > 4 || len(s) == 0 {
		return s
	}
	if _, err := strconv.Atoi(s); err != nil {
		return s
	}
	s = strings.Repeat("0", 4-len(s)) + s
	return s[:2] + ":" + s[2:]
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// redact keeps the map key out of logged URLs.
func redact(err error, key string) error {
	if key == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "***"))
}
