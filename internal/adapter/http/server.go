package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/ana"
	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
	"github.com/couchcryptid/hydro-monitor-service/internal/station"
)

// StationService lists stations and their histories.
type StationService interface {
	GetStationsData(ctx context.Context, q station.Query) (*station.Result, error)
	GetStation(ctx context.Context, code string, q station.Query) (*domain.Station, error)
}

// ReportService computes state daily means.
type ReportService interface {
	GetStateDailyMunicipalMeans(ctx context.Context, uf string, days int, includeToday bool) (domain.DailyMeansReport, error)
}

// HotspotService builds fire-detection reports.
type HotspotService interface {
	Report(ctx context.Context, area domain.Area, days int) (domain.HotspotReport, error)
}

// TokenService exposes the hydrology API token.
type TokenService interface {
	Get() ana.TokenStatus
	Authenticate(ctx context.Context) (string, error)
}

// Deps are the services behind the routes. Hotspots may be nil, which
// disables /focos.
type Deps struct {
	Stations StationService
	Reports  ReportService
	Hotspots HotspotService
	Tokens   TokenService
	Ready    sharedobs.ReadinessChecker
	// Today returns the current local date, used when a route defaults it.
	Today func() string
}

// Limits configures the API rate limiter. A zero Rate disables it.
type Limits struct {
	Rate  float64
	Burst int
}

// Server exposes the monitoring API plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, deps Deps, limits Limits, logger *slog.Logger, metrics *observability.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			// Dashboard fan-outs over a whole state can take a while.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		deps:    deps,
		logger:  logger,
		metrics: metrics,
	}

	engine.Use(recovery(logger), requestID(), accessLog(logger), instrument(metrics), cors())

	engine.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	engine.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(deps.Ready)))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/", rateLimit(limits))
	api.GET("/estacoes/lista", s.handleListStations)
	api.GET("/estatisticas/medias-diarias/:uf/:dias", s.handleDailyMeans)
	api.GET("/estatisticas/estacao/:codigo", s.handleStationStatistics)
	api.GET("/focos", s.handleHotspots)
	api.GET("/auth/", s.handleAuth)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
