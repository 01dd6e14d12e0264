package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Date filter types accepted by the history endpoint.
const (
	FilterReadingDate = "DATA_LEITURA"
	FilterUpdateDate  = "DATA_ULTIMA_ATUALIZACAO"
)

// DateLayout is the query date format, YYYY-MM-DD.
const DateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Intervals lists every interval the history endpoint understands, in
// ascending order of span.
var Intervals = buildIntervals()

var intervalSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Intervals))
	for _, iv := range Intervals {
		set[iv] = struct{}{}
	}
	return set
}()

func buildIntervals() []string {
	out := []string{"MINUTO_15", "MINUTO_30"}
	for h := 1; h <= 24; h++ {
		out = append(out, fmt.Sprintf("HORA_%d", h))
	}
	return append(out, "DIAS_2", "DIAS_7", "DIAS_14", "DIAS_21", "DIAS_30")
}

// IsInterval reports whether s is one of [Intervals].
func IsInterval(s string) bool {
	_, ok := intervalSet[s]
	return ok
}

// IsDateFilterType reports whether s is a known date filter type.
func IsDateFilterType(s string) bool {
	return s == FilterReadingDate || s == FilterUpdateDate
}

// ValidateDate checks that s is a real calendar date in YYYY-MM-DD form.
func ValidateDate(s string) error {
	if !datePattern.MatchString(s) {
		return invalid("dataBusca", "%q is not YYYY-MM-DD", s)
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return invalid("dataBusca", "%q is not a calendar date", s)
	}
	return nil
}

// ValidateHistoryParams checks the inputs of a history query.
func ValidateHistoryParams(stationCode, dateFilterType, date, interval string) error {
	if strings.TrimSpace(stationCode) == "" {
		return invalid("codigoEstacao", "station code is required")
	}
	if !IsDateFilterType(dateFilterType) {
		return invalid("tipoFiltroData", "%q must be %s or %s", dateFilterType, FilterReadingDate, FilterUpdateDate)
	}
	if err := ValidateDate(date); err != nil {
		return err
	}
	if !IsInterval(interval) {
		return invalid("intervalo", "%q is not a supported interval", interval)
	}
	return nil
}
