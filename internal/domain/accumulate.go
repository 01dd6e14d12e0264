package domain

import (
	"math"
	"sort"
	"time"
)

// AccumulationMode selects how readings are bucketed into 24h windows.
type AccumulationMode string

const (
	// ModeRelative counts whole 24h steps back from the latest reading.
	ModeRelative AccumulationMode = "RELATIVE"
	// ModeCalendar buckets by local calendar day.
	ModeCalendar AccumulationMode = "CALENDAR"
)

const day = 24 * time.Hour

// referenceLayout renders window ends as UTC instants with milliseconds.
const referenceLayout = "2006-01-02T15:04:05.000Z"

// AccumulationWindow is one 24h rain bucket.
type AccumulationWindow struct {
	Reference string   `json:"data_hora_referencia"`
	Total     *float64 `json:"acumulado_chuva"`
	Count     int      `json:"qtd_registros"`
}

// AccumulationOptions configures [Accumulate].
type AccumulationOptions struct {
	TZOffsetMinutes int
	Mode            AccumulationMode
}

// Accumulation is the result of [Accumulate]. Windows is nil when no window
// holds a valid rain value.
type Accumulation struct {
	Total   *float64
	Windows []AccumulationWindow
}

// SumRain totals every parseable rain value, rounded to two decimals. It
// returns nil when there is none.
func SumRain(records []Measurement) *float64 {
	var sum float64
	var seen bool
	for _, r := range records {
		if v, ok := r.Float(FieldRain); ok {
			sum += v
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return Round2(sum)
}

// Round2 rounds to two decimals.
func Round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

type bucket struct {
	sum   float64
	rain  bool
	count int
}

// Accumulate totals rain over the records and buckets it into 24h windows.
func Accumulate(records []Measurement, opts AccumulationOptions) Accumulation {
	loc := FixedZone(opts.TZOffsetMinutes)
	result := Accumulation{Total: SumRain(records)}

	type stamped struct {
		at  time.Time
		rec Measurement
	}
	var valid []stamped
	for _, r := range records {
		if r.MeasuredAt == nil {
			continue
		}
		if t, ok := ParseTimestamp(*r.MeasuredAt, loc); ok {
			valid = append(valid, stamped{at: t.UTC(), rec: r})
		}
	}
	if len(valid) == 0 {
		return result
	}

	buckets := make(map[int64]*bucket)
	var latest time.Time
	for _, s := range valid {
		if s.at.After(latest) {
			latest = s.at
		}
	}
	offset := time.Duration(opts.TZOffsetMinutes) * time.Minute
	for _, s := range valid {
		var k int64
		if opts.Mode == ModeCalendar {
			k = floorDiv(s.at.Add(offset).Unix(), int64(day/time.Second))
		} else {
			k = int64(latest.Sub(s.at) / day)
		}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{}
			buckets[k] = b
		}
		b.count++
		if v, ok := s.rec.Float(FieldRain); ok {
			b.sum += v
			b.rain = true
		}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	if opts.Mode == ModeCalendar {
		sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	} else {
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	}

	windows := make([]AccumulationWindow, 0, len(keys))
	var anyRain bool
	for _, k := range keys {
		b := buckets[k]
		var end time.Time
		if opts.Mode == ModeCalendar {
			end = time.Unix((k+1)*int64(day/time.Second), 0).Add(-offset).UTC()
		} else {
			end = latest.Add(-time.Duration(k) * day)
		}
		w := AccumulationWindow{Reference: end.Format(referenceLayout), Count: b.count}
		if b.rain {
			w.Total = Round2(b.sum)
			anyRain = true
		}
		windows = append(windows, w)
	}
	if anyRain {
		result.Windows = windows
	}
	return result
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
