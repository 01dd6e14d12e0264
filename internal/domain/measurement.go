package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ObservationInvalidDate flags a record whose timestamp did not parse.
const ObservationInvalidDate = "DATA_INVALIDA"

// Field names one of the measured variables of a record.
type Field string

const (
	FieldRain  Field = "Chuva_Adotada"
	FieldLevel Field = "Cota_Adotada"
	FieldFlow  Field = "Vazao_Adotada"
)

// MeasuredFields lists the numeric variables in record order.
var MeasuredFields = []Field{FieldRain, FieldLevel, FieldFlow}

// Measurement is one telemetry reading. Only the allow-listed fields survive
// normalization and they marshal in this order.
type Measurement struct {
	MeasuredAt  *string `json:"Data_Hora_Medicao"`
	UpdatedAt   *string `json:"Data_Atualizacao"`
	Rain        *string `json:"Chuva_Adotada"`
	Level       *string `json:"Cota_Adotada"`
	Flow        *string `json:"Vazao_Adotada"`
	Observation string  `json:"_observacao,omitempty"`
}

// Value returns the raw text of the named variable.
func (m Measurement) Value(f Field) *string {
	switch f {
	case FieldRain:
		return m.Rain
	case FieldLevel:
		return m.Level
	case FieldFlow:
		return m.Flow
	}
	return nil
}

// Float parses the named variable; ok is false when it is absent or not numeric.
func (m Measurement) Float(f Field) (float64, bool) {
	return ParseDecimal(m.Value(f))
}

// InvalidDate reports whether the record was flagged during sorting.
func (m Measurement) InvalidDate() bool {
	return m.Observation == ObservationInvalidDate
}

// ParseDecimal parses a comma-or-dot decimal string.
func ParseDecimal(s *string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses an ANA local timestamp in the given location.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FixedZone returns the location for a UTC offset in minutes.
func FixedZone(offsetMinutes int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", offsetMinutes/60, abs(offsetMinutes%60)), offsetMinutes*60)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// DayOf returns the leading YYYY-MM-DD of a timestamp string, or "" when the
// string is too short.
func DayOf(ts *string) string {
	if ts == nil || len(*ts) < len(DateLayout) {
		return ""
	}
	return (*ts)[:len(DateLayout)]
}

var fieldOrder = []string{"Data_Hora_Medicao", "Data_Atualizacao", "Chuva_Adotada", "Cota_Adotada", "Vazao_Adotada"}

// NormalizeRecords turns an upstream items payload into records. A single
// object is treated as a one-element array; null yields no records. Numbers
// are rendered as their shortest decimal text.
func NormalizeRecords(raw json.RawMessage) ([]Measurement, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Measurement{}, nil
	}

	var objects []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	switch raw[0] {
	case '[':
		if err := dec.Decode(&objects); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
	case '{':
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		objects = []map[string]any{obj}
	default:
		return nil, fmt.Errorf("decode records: unexpected payload starting with %q", raw[0])
	}

	out := make([]Measurement, 0, len(objects))
	for _, obj := range objects {
		if obj == nil {
			continue
		}
		var vals [5]*string
		for i, name := range fieldOrder {
			vals[i] = stringify(obj[name])
		}
		out = append(out, Measurement{
			MeasuredAt: vals[0],
			UpdatedAt:  vals[1],
			Rain:       vals[2],
			Level:      vals[3],
			Flow:       vals[4],
		})
	}
	return out, nil
}

func stringify(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

var sentinelTime = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// SortByMeasurementDate flags records with unparseable timestamps and sorts
// them ahead of the valid ones, which end up ascending. The sort is stable.
func SortByMeasurementDate(records []Measurement, loc *time.Location) {
	keys := make([]time.Time, len(records))
	for i := range records {
		var ts string
		if records[i].MeasuredAt != nil {
			ts = *records[i].MeasuredAt
		}
		t, ok := ParseTimestamp(ts, loc)
		if !ok {
			records[i].Observation = ObservationInvalidDate
			t = sentinelTime
		}
		keys[i] = t
	}
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]].Before(keys[idx[b]]) })

	sorted := make([]Measurement, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}
