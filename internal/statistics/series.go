// Package statistics computes descriptive statistics over station series and
// the per-state daily municipal rain means.
package statistics

import (
	"math"
	"sort"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
)

// Values extracts the parseable values of a field, in record order.
func Values(records []domain.Measurement, field domain.Field) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		if v, ok := r.Float(field); ok {
			out = append(out, v)
		}
	}
	return out
}

// Mean returns the arithmetic mean, or nil for no values.
func Mean(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	m := sum / float64(len(vals))
	return &m
}

// Median returns the middle value, averaging the two middle ones for an
// even count.
func Median(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	m := sorted[mid]
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	}
	return &m
}

// StdDev returns the population standard deviation.
func StdDev(vals []float64) *float64 {
	mean := Mean(vals)
	if mean == nil {
		return nil
	}
	var sq float64
	for _, v := range vals {
		d := v - *mean
		sq += d * d
	}
	s := math.Sqrt(sq / float64(len(vals)))
	return &s
}

// Min returns the smallest value.
func Min(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Min(m, v)
	}
	return &m
}

// Max returns the largest value.
func Max(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Max(m, v)
	}
	return &m
}

// Mode returns the first value, in input order, that reaches the highest
// frequency.
func Mode(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	counts := make(map[float64]int, len(vals))
	best := 0
	for _, v := range vals {
		counts[v]++
		best = max(best, counts[v])
	}
	for _, v := range vals {
		if counts[v] == best {
			m := v
			return &m
		}
	}
	return nil
}

// PercentValid is the share of records with a parseable value for field, 0-100.
func PercentValid(records []domain.Measurement, field domain.Field) *float64 {
	if len(records) == 0 {
		return nil
	}
	p := float64(len(Values(records, field))) / float64(len(records)) * 100
	return &p
}

// Trend is the least-squares slope of the values against their index.
func Trend(vals []float64) *float64 {
	n := float64(len(vals))
	if n == 0 {
		return nil
	}
	var sx, sy, sxy, sxx float64
	for i, v := range vals {
		x := float64(i)
		sx += x
		sy += v
		sxy += x * v
		sxx += x * x
	}
	den := n*sxx - sx*sx
	slope := 0.0
	if den != 0 {
		slope = (n*sxy - sx*sy) / den
	}
	return &slope
}

// CountWhere counts the values satisfying pred.
func CountWhere(vals []float64, pred func(float64) bool) *int {
	if len(vals) == 0 {
		return nil
	}
	n := 0
	for _, v := range vals {
		if pred(v) {
			n++
		}
	}
	return &n
}

// LongestRun is the length of the longest consecutive run satisfying pred.
func LongestRun(vals []float64, pred func(float64) bool) *int {
	if len(vals) == 0 {
		return nil
	}
	longest, run := 0, 0
	for _, v := range vals {
		if pred(v) {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return &longest
}
