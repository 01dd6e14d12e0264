package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/ana"
	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/station"
	"github.com/couchcryptid/hydro-monitor-service/internal/statistics"
)

var listKeys = map[string]bool{
	"codigo": true, "tipo": true, "municipio": true, "uf": true, "bacia": true, "rio": true,
	"incluirHistorico": true, "tipoFiltroData": true, "dataBusca": true, "intervalo": true,
}

// GET /estacoes/lista
func (s *Server) handleListStations(c *gin.Context) {
	query := c.Request.URL.Query()
	for key := range query {
		if !listKeys[key] {
			s.fail(c, &domain.ValidationError{Field: key, Message: "unknown query parameter"})
			return
		}
	}
	includeHistory, err := parseBool(c.Query("incluirHistorico"), false)
	if err != nil {
		s.fail(c, &domain.ValidationError{Field: "incluirHistorico", Message: err.Error()})
		return
	}

	q := station.Query{
		Filters: domain.StationFilters{
			Code:         c.Query("codigo"),
			Type:         c.Query("tipo"),
			Municipality: c.Query("municipio"),
			State:        c.Query("uf"),
			Basin:        c.Query("bacia"),
			River:        c.Query("rio"),
		},
		IncludeHistory: includeHistory,
		DateFilterType: c.Query("tipoFiltroData"),
		Date:           c.Query("dataBusca"),
		Interval:       c.Query("intervalo"),
	}

	if code := q.Filters.Code; code != "" {
		st, err := s.deps.Stations.GetStation(c.Request.Context(), code, q)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
		return
	}

	res, err := s.deps.Stations.GetStationsData(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(res.Stations) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"erro": "nenhuma estação encontrada para os filtros informados"})
		return
	}
	c.JSON(http.StatusOK, res.Stations)
}

// GET /estatisticas/medias-diarias/:uf/:dias
func (s *Server) handleDailyMeans(c *gin.Context) {
	days, err := strconv.Atoi(c.Param("dias"))
	if err != nil {
		s.fail(c, &domain.ValidationError{Field: "dias", Message: fmt.Sprintf("%q is not a number", c.Param("dias"))})
		return
	}
	includeToday, err := parseBool(c.Query("incluirHoje"), true)
	if err != nil {
		s.fail(c, &domain.ValidationError{Field: "incluirHoje", Message: err.Error()})
		return
	}

	report, err := s.deps.Reports.GetStateDailyMunicipalMeans(c.Request.Context(), c.Param("uf"), days, includeToday)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /estatisticas/estacao/:codigo
func (s *Server) handleStationStatistics(c *gin.Context) {
	q := station.Query{
		IncludeHistory: true,
		DateFilterType: c.DefaultQuery("tipoFiltroData", domain.FilterReadingDate),
		Date:           c.Query("dataBusca"),
		Interval:       c.Query("intervalo"),
	}
	if q.Date == "" && s.deps.Today != nil {
		q.Date = s.deps.Today()
	}

	st, err := s.deps.Stations.GetStation(c.Request.Context(), c.Param("codigo"), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if st.History == nil {
		s.fail(c, errors.New("station history unavailable"))
		return
	}
	if st.History.Failed() {
		s.fail(c, errors.New(st.History.ErrorReason))
		return
	}
	c.JSON(http.StatusOK, statistics.SummarizeHistory(*st.History))
}

// GET /focos
func (s *Server) handleHotspots(c *gin.Context) {
	if s.deps.Hotspots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"erro": "monitoramento de focos desabilitado", "detalhes": "FIRMS_MAP_KEY not configured"})
		return
	}
	area, err := domain.ParseArea(c.Query("area"))
	if err != nil {
		s.fail(c, err)
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("dias", "1"))
	if err != nil {
		s.fail(c, &domain.ValidationError{Field: "dias", Message: fmt.Sprintf("%q is not a number", c.Query("dias"))})
		return
	}

	report, err := s.deps.Hotspots.Report(c.Request.Context(), area, days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /auth/
func (s *Server) handleAuth(c *gin.Context) {
	if !s.deps.Tokens.Get().Valid {
		if _, err := s.deps.Tokens.Authenticate(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.deps.Tokens.Get())
}

// fail maps an error onto the API error body.
func (s *Server) fail(c *gin.Context, err error) {
	var authErr *ana.AuthError
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"erro": "parâmetros inválidos", "detalhes": err.Error()})
	case station.IsNotFound(err) || errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"erro": "estação não encontrada", "detalhes": err.Error()})
	case errors.As(err, &authErr):
		s.logger.Warn("hydrology authentication failed", "error", err, "request_id", c.GetString(requestIDKey))
		c.JSON(http.StatusBadGateway, gin.H{
			"erro":     "falha na autenticação com a ANA",
			"detalhes": err.Error(),
			"tipo":     authErr.Kind,
			"codigo":   authErr.Status,
		})
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err, "request_id", c.GetString(requestIDKey))
		c.JSON(http.StatusBadGateway, gin.H{"erro": "falha ao consultar o serviço", "detalhes": err.Error()})
	}
}

func parseBool(s string, def bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "true", "1", "sim":
		return true, nil
	case "false", "0", "nao", "não":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}
