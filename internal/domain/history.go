package domain

// StationStatus summarizes how fresh a station's readings are.
type StationStatus string

const (
	StatusUpdated  StationStatus = "ATUALIZADA"
	StatusOutdated StationStatus = "DESATUALIZADA"
	StatusError    StationStatus = "ERRO"
)

// History is the normalized answer to one station history query. A failed
// query is still a History, with Status StatusError and a reason, so one bad
// station never aborts a batch.
type History struct {
	StationCode     string               `json:"codigo_estacao"`
	Status          StationStatus        `json:"status_estacao"`
	ErrorReason     string               `json:"motivo_erro,omitempty"`
	DateFilterType  string               `json:"tipo_filtro_data,omitempty"`
	Date            string               `json:"data_busca,omitempty"`
	Interval        string               `json:"intervalo,omitempty"`
	RainTotal       *float64             `json:"chuva_acumulada"`
	RelativeWindows []AccumulationWindow `json:"acumulados_24h_relativo"`
	CalendarWindows []AccumulationWindow `json:"acumulados_24h_calendario"`
	Items           []Measurement        `json:"items"`
}

// FailedHistory builds the error-shaped result for a station.
func FailedHistory(stationCode, reason string) History {
	return History{
		StationCode: stationCode,
		Status:      StatusError,
		ErrorReason: reason,
		Items:       []Measurement{},
	}
}

// Failed reports whether the query errored.
func (h History) Failed() bool {
	return h.Status == StatusError
}

// HasRecordOn reports whether any valid record falls on the given day.
func (h History) HasRecordOn(date string) bool {
	for _, m := range h.Items {
		if !m.InvalidDate() && DayOf(m.MeasuredAt) == date {
			return true
		}
	}
	return false
}
