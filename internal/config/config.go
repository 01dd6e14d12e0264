package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Hydrology (ANA) API.
	ANABaseURL        string
	ANAIdentifier     string
	ANAPassword       string
	ANAAuthTimeout    time.Duration
	ANAHistoryTimeout time.Duration

	// Local station data.
	TZOffsetMinutes      int
	DataDir              string
	StationInventoryPath string

	// History fan-out and dashboard.
	StationBatchSize            int
	StationMaxConcurrentBatches int
	DashboardSummaryEnabled     bool
	LogDedupSize                int

	// API rate limiting.
	RateLimit      float64
	RateLimitBurst int

	// NASA FIRMS hotspots.
	FIRMSMapKey   string
	FIRMSBaseURL  string
	FIRMSSource   string
	FIRMSTimeout  time.Duration
	FIRMSCacheTTL time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	CacheDBPath string

	// Background refresher and report publishing.
	RefreshStates    []string
	RefreshInterval  time.Duration
	RefreshDays      int
	KafkaBrokers     []string
	KafkaReportTopic string
}

// FIRMSEnabled reports whether the hotspot route is served.
func (c *Config) FIRMSEnabled() bool { return c.FIRMSMapKey != "" }

// KafkaEnabled reports whether reports are published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// LoadDotEnv loads a .env file into the environment when one exists.
// Variables already set take precedence.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var p parser
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ANABaseURL:        strings.TrimRight(sharedcfg.EnvOrDefault("ANA_BASE_URL", "https://www.ana.gov.br/hidrowebservice/EstacoesTelemetricas"), "/"),
		ANAIdentifier:     os.Getenv("ANA_IDENTIFICADOR"),
		ANAPassword:       os.Getenv("ANA_SENHA"),
		ANAAuthTimeout:    p.duration("ANA_AUTH_TIMEOUT", "15s"),
		ANAHistoryTimeout: p.duration("ANA_HISTORY_TIMEOUT", "10s"),

		TZOffsetMinutes:      p.integer("TZ_OFFSET_MINUTES", "-180", -14*60, 14*60),
		DataDir:              sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		StationInventoryPath: sharedcfg.EnvOrDefault("STATION_INVENTORY_PATH", "data/estacoes.json"),

		StationBatchSize:            p.integer("STATION_BATCH_SIZE", "15", 1, 1000),
		StationMaxConcurrentBatches: p.integer("STATION_MAX_CONCURRENT_BATCHES", "5", 1, 100),
		DashboardSummaryEnabled:     p.boolean("DASHBOARD_SUMMARY_ENABLED", "true"),
		LogDedupSize:                p.integer("LOG_DEDUP_SIZE", "256", 1, 1<<20),

		RateLimit:      p.float("RATE_LIMIT", "20"),
		RateLimitBurst: p.integer("RATE_LIMIT_BURST", "40", 1, 1<<20),

		FIRMSMapKey:   os.Getenv("FIRMS_MAP_KEY"),
		FIRMSBaseURL:  strings.TrimRight(sharedcfg.EnvOrDefault("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov/api/area/csv"), "/"),
		FIRMSSource:   sharedcfg.EnvOrDefault("FIRMS_SOURCE", "VIIRS_SNPP_NRT"),
		FIRMSTimeout:  p.duration("FIRMS_TIMEOUT", "20s"),
		FIRMSCacheTTL: p.duration("FIRMS_CACHE_TTL", "10m"),

		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:   p.duration("MAPBOX_TIMEOUT", "5s"),
		MapboxCacheSize: parseMapboxCacheSize(),

		CacheDBPath: sharedcfg.EnvOrDefault("CACHE_DB_PATH", "cache.db"),

		RefreshStates:    parseStates(os.Getenv("REFRESH_STATES")),
		RefreshInterval:  p.duration("REFRESH_INTERVAL", "15m"),
		RefreshDays:      p.integer("REFRESH_DAYS", "7", 1, 14),
		KafkaBrokers:     parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "hydro-daily-means"),
	}
	if p.err != nil {
		return nil, p.err
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.RateLimit <= 0 {
		return nil, errors.New("invalid RATE_LIMIT")
	}
	if cfg.KafkaEnabled() && cfg.KafkaReportTopic == "" {
		return nil, errors.New("KAFKA_REPORT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// parser accumulates the first parse error so Load can read every variable
// in one struct literal.
type parser struct {
	err error
}

func (p *parser) fail(name string) {
	if p.err == nil {
		p.err = errors.New("invalid " + name)
	}
}

func (p *parser) duration(name, def string) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		p.fail(name)
		return 0
	}
	return d
}

func (p *parser) integer(name, def string, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(sharedcfg.EnvOrDefault(name, def)))
	if err != nil || n < lo || n > hi {
		p.fail(name)
		return 0
	}
	return n
}

func (p *parser) float(name, def string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(sharedcfg.EnvOrDefault(name, def)), 64)
	if err != nil {
		p.fail(name)
		return 0
	}
	return f
}

func (p *parser) boolean(name, def string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(sharedcfg.EnvOrDefault(name, def)))
	if err != nil {
		p.fail(name)
		return false
	}
	return b
}

func parseStates(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if uf := strings.ToUpper(strings.TrimSpace(part)); uf != "" {
			out = append(out, uf)
		}
	}
	return out
}

func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(s)
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
