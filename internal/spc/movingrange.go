package spc

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Series is the time-ordered run of measurements of one step.
type Series struct {
	Key    string
	Points []Measurement
}

// Values returns the measured values in series order.
func (s Series) Values() []float64 {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// MRStats summarizes a series with its moving ranges.
type MRStats struct {
	Key   string
	N     int
	Mean  float64
	MRBar Float
	NMR   int
}

// GroupSeries splits measurements into one Series per key, each stable-sorted
// by time, with series ordered by CompareKeys. The input slice is not
// modified.
func GroupSeries(measurements []Measurement) []Series {
	if len(measurements) == 0 {
		return nil
	}

	index := make(map[string]int)
	var out []Series
	for _, m := range measurements {
		i, ok := index[m.Key]
		if !ok {
			i = len(out)
			index[m.Key] = i
			out = append(out, Series{Key: m.Key})
		}
		out[i].Points = append(out[i].Points, m)
	}

	for _, s := range out {
		points := s.Points
		sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	}
	sort.Slice(out, func(i, j int) bool { return CompareKeys(out[i].Key, out[j].Key) < 0 })
	return out
}

// MovingRanges returns |x[i] - x[i-1]| for each position. The first entry is
// always undefined.
func MovingRanges(values []float64) []Float {
	mr := make([]Float, len(values))
	for i := 1; i < len(values); i++ {
		mr[i] = Some(math.Abs(values[i] - values[i-1]))
	}
	return mr
}

// ComputeMRStats returns N, mean, MRbar and the number of defined moving ranges.
func ComputeMRStats(s Series) MRStats {
	values := s.Values()
	st := MRStats{Key: s.Key, N: len(values)}
	if len(values) == 0 {
		return st
	}
	st.Mean = stat.Mean(values, nil)

	defined := make([]float64, 0, len(values))
	for _, mr := range MovingRanges(values) {
		if mr.Valid {
			defined = append(defined, mr.V)
		}
	}
	st.NMR = len(defined)
	if st.NMR > 0 {
		st.MRBar = Some(stat.Mean(defined, nil))
	}
	return st
}

// CompareKeys is a total order over step keys: numeric keys come first in
// numeric order, then every other key in lexicographic order. Numerically
// equal keys such as "1" and "1.0" fall back to lexicographic order.
func CompareKeys(a, b string) int {
	if a == b {
		return 0
	}
	fa, numA := numericKey(a)
	fb, numB := numericKey(b)
	switch {
	case numA && !numB:
		return -1
	case !numA && numB:
		return 1
	case numA && numB && fa != fb:
		if fa < fb {
			return -1
		}
		return 1
	}
	if a < b {
		return -1
	}
	return 1
}

func numericKey(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
