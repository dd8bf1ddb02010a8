package spc

// ScorePoints standardizes evaluation measurements against their step's
// limits and flags out-of-control points.
//
// Moving ranges come from the evaluation series itself. Measurements whose
// step has no limits are dropped. When both rules fire on the same point the
// moving-range rule is reported.
func ScorePoints(evaluation []Measurement, limits []Limits) []ScoredPoint {
	if len(evaluation) == 0 || len(limits) == 0 {
		return nil
	}

	byKey := LimitsByKey(limits)
	var scored []ScoredPoint
	for _, s := range GroupSeries(evaluation) {
		l, ok := byKey[s.Key]
		if !ok {
			continue
		}
		mrs := MovingRanges(s.Values())
		for i, m := range s.Points {
			scored = append(scored, scorePoint(m, l, mrs[i]))
		}
	}
	return scored
}

func scorePoint(m Measurement, l Limits, mr Float) ScoredPoint {
	p := ScoredPoint{
		Key:    m.Key,
		Time:   m.Time,
		Value:  m.Value,
		Limits: l,
		MR:     mr,
		Rule:   RuleOK,
	}

	if l.Sigma.Valid && l.Sigma.V != 0 {
		p.Z = Some((m.Value - l.Center) / l.Sigma.V)
	}

	// comparisons against undefined limits never fire
	p.OOCIndividual = (l.UCL.Valid && m.Value > l.UCL.V) || (l.LCL.Valid && m.Value < l.LCL.V)
	p.OOCMR = mr.Valid && l.UCLMR.Valid && mr.V > l.UCLMR.V

	switch {
	case p.OOCMR:
		p.Rule = RuleMR3Sigma
	case p.OOCIndividual:
		p.Rule = RuleI3Sigma
	}
	p.Alert = p.OOCIndividual || p.OOCMR
	return p
}
