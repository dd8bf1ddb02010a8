package spc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CapabilityOptions sets the sample-size thresholds of the capability estimator.
type CapabilityOptions struct {
	MinPoints int
	// MinMR is the minimum number of defined moving ranges. Nil selects
	// DefaultMinMR(MinPoints); an explicit zero keeps single-point steps.
	MinMR *int
}

func (o CapabilityOptions) minMR() int {
	if o.MinMR == nil {
		return DefaultMinMR(o.MinPoints)
	}
	return *o.MinMR
}

// DefaultMinMR returns the moving-range threshold implied by minPoints: an
// I-MR baseline of N points has N-1 moving ranges.
func DefaultMinMR(minPoints int) int {
	if minPoints-1 < 1 {
		return 1
	}
	return minPoints - 1
}

// ComputeCapability estimates per-step capability from baseline measurements,
// which must carry LSL and USL. Steps below MinPoints or MinMR are left out.
//
// Pp/Ppk use the sample standard deviation of every baseline value. Cp/Cpk use
// sigma_within = MRbar/d2. Each pair is only set when the tolerance span and
// its own sigma are strictly positive.
func ComputeCapability(baseline []Measurement, opts CapabilityOptions) []Capability {
	minMR := opts.minMR()

	series := GroupSeries(baseline)
	out := make([]Capability, 0, len(series))
	for _, s := range series {
		st := ComputeMRStats(s)
		if st.N < opts.MinPoints || st.NMR < minMR {
			continue
		}
		out = append(out, capabilityFromSeries(s, st))
	}
	return out
}

func capabilityFromSeries(s Series, st MRStats) Capability {
	lsl := make([]float64, len(s.Points))
	usl := make([]float64, len(s.Points))
	for i, p := range s.Points {
		lsl[i] = p.LSL
		usl[i] = p.USL
	}

	c := Capability{
		Key:            s.Key,
		N:              st.N,
		NMR:            st.NMR,
		Mean:           st.Mean,
		MRBar:          st.MRBar,
		LSL:            median(lsl),
		USL:            median(usl),
		TolVariantsLSL: distinct(lsl),
		TolVariantsUSL: distinct(usl),
	}
	// a sample deviation needs two points
	if st.N > 1 {
		c.StdOverall = Some(stat.StdDev(s.Values(), nil))
	}
	if st.MRBar.Valid {
		c.SigmaWithin = Some(st.MRBar.V / D2)
	}
	c.TolSpan = c.USL - c.LSL
	c.TolInconsistent = c.TolVariantsLSL > 1 || c.TolVariantsUSL > 1

	if c.TolSpan > 0 {
		c.Pp, c.Ppk = capabilityPair(c, c.StdOverall)
		c.Cp, c.Cpk = capabilityPair(c, c.SigmaWithin)
	}
	return c
}

// capabilityPair returns (span/6σ, min(PU, PL)) or two undefined values when
// sigma is not strictly positive.
func capabilityPair(c Capability, sigma Float) (Float, Float) {
	if !sigma.Valid || sigma.V <= 0 {
		return None(), None()
	}
	denom := SigmaMultiplier * sigma.V
	upper := (c.USL - c.Mean) / denom
	lower := (c.Mean - c.LSL) / denom
	return Some(c.TolSpan / (2 * denom)), Some(math.Min(upper, lower))
}

// median averages the two middle values of an even-length sample.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func distinct(values []float64) int {
	seen := make(map[float64]struct{}, 4)
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
