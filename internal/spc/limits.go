package spc

// ComputeLimits estimates I-MR control limits per step from baseline
// measurements. Steps with fewer than minPoints measurements are left out.
// An empty baseline yields an empty result.
func ComputeLimits(baseline []Measurement, minPoints int) []Limits {
	series := GroupSeries(baseline)
	limits := make([]Limits, 0, len(series))
	for _, s := range series {
		st := ComputeMRStats(s)
		if st.N < minPoints {
			continue
		}
		limits = append(limits, limitsFromStats(st))
	}
	return limits
}

func limitsFromStats(st MRStats) Limits {
	l := Limits{
		Key:    st.Key,
		N:      st.N,
		Center: st.Mean,
		MRBar:  st.MRBar,
		LCLMR:  D3 * st.MRBar.Or(0),
	}
	if st.MRBar.Valid {
		sigma := st.MRBar.V / D2
		l.Sigma = Some(sigma)
		l.UCL = Some(st.Mean + SigmaMultiplier*sigma)
		l.LCL = Some(st.Mean - SigmaMultiplier*sigma)
		l.UCLMR = Some(D4 * st.MRBar.V)
	}
	return l
}

// LimitsByKey indexes limits by step key.
func LimitsByKey(limits []Limits) map[string]Limits {
	byKey := make(map[string]Limits, len(limits))
	for _, l := range limits {
		byKey[l.Key] = l
	}
	return byKey
}
