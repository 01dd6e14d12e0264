package statistics

import "github.com/couchcryptid/hydro-monitor-service/internal/domain"

// FieldSummary describes one measured variable of a station series.
type FieldSummary struct {
	Field        domain.Field `json:"campo"`
	Count        int          `json:"qtd_valores"`
	Mean         *float64     `json:"media"`
	Median       *float64     `json:"mediana"`
	StdDev       *float64     `json:"desvio_padrao"`
	Min          *float64     `json:"minimo"`
	Max          *float64     `json:"maximo"`
	Mode         *float64     `json:"moda"`
	PercentValid *float64     `json:"percentual_validos"`
	Trend        *float64     `json:"tendencia"`
}

// RainEvents summarizes wet and dry readings of a rain series.
type RainEvents struct {
	WetReadings   *int `json:"leituras_com_chuva"`
	LongestWetRun *int `json:"maior_sequencia_com_chuva"`
	LongestDryRun *int `json:"maior_sequencia_sem_chuva"`
}

// HistorySummary is the statistics view of a station history.
type HistorySummary struct {
	StationCode string               `json:"codigo_estacao"`
	Status      domain.StationStatus `json:"status_estacao"`
	Records     int                  `json:"qtd_registros"`
	RainTotal   *float64             `json:"chuva_acumulada"`
	Fields      []FieldSummary       `json:"campos"`
	Rain        RainEvents           `json:"eventos_chuva"`
}

// SummarizeField computes every helper over one variable.
func SummarizeField(records []domain.Measurement, field domain.Field) FieldSummary {
	vals := Values(records, field)
	return FieldSummary{
		Field:        field,
		Count:        len(vals),
		Mean:         Mean(vals),
		Median:       Median(vals),
		StdDev:       StdDev(vals),
		Min:          Min(vals),
		Max:          Max(vals),
		Mode:         Mode(vals),
		PercentValid: PercentValid(records, field),
		Trend:        Trend(vals),
	}
}

func wet(v float64) bool { return v > 0 }
func dry(v float64) bool { return v == 0 }

// SummarizeHistory summarizes every measured variable of h.
func SummarizeHistory(h domain.History) HistorySummary {
	fields := make([]FieldSummary, 0, len(domain.MeasuredFields))
	for _, f := range domain.MeasuredFields {
		fields = append(fields, SummarizeField(h.Items, f))
	}
	rain := Values(h.Items, domain.FieldRain)
	return HistorySummary{
		StationCode: h.StationCode,
		Status:      h.Status,
		Records:     len(h.Items),
		RainTotal:   h.RainTotal,
		Fields:      fields,
		Rain: RainEvents{
			WetReadings:   CountWhere(rain, wet),
			LongestWetRun: LongestRun(rain, wet),
			LongestDryRun: LongestRun(rain, dry),
		},
	}
}
