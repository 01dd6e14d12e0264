package domain

import "time"

// MunicipalityMean is one municipality's mean daily rain.
type MunicipalityMean struct {
	Municipality string  `json:"municipio"`
	Mean         float64 `json:"media"`
	Stations     int     `json:"qtd_estacoes"`
}

// SeriesPoint is one day of a state's rain series. Mean is the unweighted
// mean of the municipal means.
type SeriesPoint struct {
	Date           string             `json:"data"`
	Mean           float64            `json:"media"`
	Municipalities []MunicipalityMean `json:"municipios"`
}

// VariableCoverage counts stations with at least one valid value today.
type VariableCoverage struct {
	Stations int     `json:"estacoes"`
	Percent  float64 `json:"percentual"`
}

// Coverage groups per-variable coverage.
type Coverage struct {
	Rain  VariableCoverage `json:"chuva"`
	Level VariableCoverage `json:"cota"`
	Flow  VariableCoverage `json:"vazao"`
}

// DashboardSummary holds the counters shown on the state dashboard for today.
type DashboardSummary struct {
	Date                      string   `json:"data"`
	StationsVerified          int      `json:"estacoes_verificadas"`
	MunicipalitiesMonitored   int      `json:"municipios_monitorados"`
	MunicipalitiesWithRain    int      `json:"municipios_com_registro_chuva"`
	MunicipalitiesWithoutRain int      `json:"municipios_sem_registro_chuva"`
	MunicipalitiesWithoutData int      `json:"municipios_sem_dados"`
	Coverage                  Coverage `json:"cobertura"`
}

// DailyMeansReport is a state's daily municipal rain means.
type DailyMeansReport struct {
	State       string            `json:"uf"`
	Days        int               `json:"dias"`
	GeneratedAt time.Time         `json:"gerado_em"`
	Summary     *DashboardSummary `json:"dashboard_resumo"`
	Series      []SeriesPoint     `json:"series"`
}
