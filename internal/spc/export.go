package spc

import (
	"fmt"
	"strconv"
	"strings"
)

// Output column names of the gold tables.
const (
	ColN        = "N"
	ColXbar     = "Xbar"
	ColMRbar    = "MRbar"
	ColSigma    = "Sigma"
	ColUCL      = "UCL"
	ColLCL      = "LCL"
	ColUCLMR    = "UCL_MR"
	ColLCLMR    = "LCL_MR"
	ColMR       = "MR"
	ColZ        = "z"
	ColOOCI     = "is_ooc_i"
	ColOOCMR    = "is_ooc_mr"
	ColRule     = "rule"
	ColAlert    = "is_alert"
	ColDistUCL  = "dist_to_ucl"
	ColDistLCL  = "dist_to_lcl"
	ColNear     = "near_limit"
	ColSince    = "rows_since_alert"
	ColNPoints  = "n_points"
	ColNAlerts  = "n_alerts"
	ColFirst    = "first_alert"
	ColLast     = "last_alert"
	ColNMR      = "n_mr"
	ColMean     = "mean"
	ColStd      = "std_overall"
	ColMRbarCap = "mrbar"
	ColSigmaW   = "sigma_within"
	ColLSL      = "lsl"
	ColUSL      = "usl"
	ColTolSpan  = "tol_span"
	ColPp       = "Pp"
	ColPpk      = "Ppk"
	ColCp       = "Cp"
	ColCpk      = "Cpk"
	ColVarLSL   = "tol_variants_lsl"
	ColVarUSL   = "tol_variants_usl"
	ColTolIncon = "tol_inconsistent"
)

// LimitsTable renders limits with the step key column named keyCol.
func LimitsTable(limits []Limits, keyCol string) *Table {
	t := NewTable(keyCol, ColN, ColXbar, ColMRbar, ColSigma, ColUCL, ColLCL, ColUCLMR, ColLCLMR)
	for _, l := range limits {
		t.Append(l.Key, strconv.Itoa(l.N), formatFloat(l.Center), l.MRBar.String(), l.Sigma.String(),
			l.UCL.String(), l.LCL.String(), l.UCLMR.String(), formatFloat(l.LCLMR))
	}
	return t
}

// PointsTable renders scored points using the input column names, followed
// by their distance features.
func PointsTable(points []ScoredPoint, cols Columns) *Table {
	t := NewTable(cols.Key, cols.Time, cols.Value,
		ColN, ColXbar, ColSigma, ColUCL, ColLCL, ColMRbar, ColUCLMR, ColLCLMR,
		ColMR, ColZ, ColOOCI, ColOOCMR, ColRule, ColAlert,
		ColDistUCL, ColDistLCL, ColNear, ColSince)
	dist := DistanceFeatures(points)
	for i, p := range points {
		l, d := p.Limits, dist[i]
		t.Append(p.Key, formatTime(p.Time), formatFloat(p.Value),
			strconv.Itoa(l.N), formatFloat(l.Center), l.Sigma.String(), l.UCL.String(), l.LCL.String(),
			l.MRBar.String(), l.UCLMR.String(), formatFloat(l.LCLMR),
			p.MR.String(), p.Z.String(), formatBool(p.OOCIndividual), formatBool(p.OOCMR),
			string(p.Rule), formatBool(p.Alert),
			d.DistToUCL.String(), d.DistToLCL.String(), formatBool(d.NearLimit), d.RowsSinceAlert.String())
	}
	return t
}

// AlertsTable renders alert summaries. One count column per AlertRules entry
// is always present.
func AlertsTable(alerts []AlertSummary, keyCol string) *Table {
	header := []string{keyCol, ColNPoints, ColNAlerts, ColFirst, ColLast}
	for _, r := range AlertRules {
		header = append(header, string(r))
	}
	t := NewTable(header...)
	for _, a := range alerts {
		row := []string{a.Key, strconv.Itoa(a.NPoints), strconv.Itoa(a.NAlerts),
			formatTime(a.FirstAlert), formatTime(a.LastAlert)}
		for _, r := range AlertRules {
			row = append(row, strconv.Itoa(a.Count(r)))
		}
		t.Append(row...)
	}
	return t
}

// CapabilityTable renders capability records.
func CapabilityTable(caps []Capability, keyCol string) *Table {
	t := NewTable(keyCol, ColN, ColNMR, ColMean, ColStd, ColMRbarCap, ColSigmaW,
		ColLSL, ColUSL, ColTolSpan, ColPp, ColPpk, ColCp, ColCpk,
		ColVarLSL, ColVarUSL, ColTolIncon)
	for _, c := range caps {
		t.Append(c.Key, strconv.Itoa(c.N), strconv.Itoa(c.NMR), formatFloat(c.Mean),
			c.StdOverall.String(), c.MRBar.String(), c.SigmaWithin.String(),
			formatFloat(c.LSL), formatFloat(c.USL), formatFloat(c.TolSpan),
			c.Pp.String(), c.Ppk.String(), c.Cp.String(), c.Cpk.String(),
			strconv.Itoa(c.TolVariantsLSL), strconv.Itoa(c.TolVariantsUSL), formatBool(c.TolInconsistent))
	}
	return t
}

// rowReader reads typed cells of one row and keeps the first parse error.
type rowReader struct {
	t   *Table
	row []string
	err error
}

func (r *rowReader) str(col string) string {
	return strings.TrimSpace(cell(r.row, r.t.Index(col)))
}

func (r *rowReader) intCell(col string) int {
	s := r.str(col)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %s: %w", col, err)
	}
	return n
}

func (r *rowReader) floatCell(col string) float64 {
	return r.optCell(col).Or(0)
}

func (r *rowReader) optCell(col string) Float {
	s := r.str(col)
	if s == "" {
		return None()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("column %s: %w", col, err)
		}
		return None()
	}
	return Some(v)
}

func (r *rowReader) boolCell(col string) bool {
	switch strings.ToLower(r.str(col)) {
	case "1", "true":
		return true
	}
	return false
}

// ReadLimits parses a limits table written by LimitsTable.
func ReadLimits(t *Table, keyCol string) ([]Limits, error) {
	if t.Empty() {
		return nil, nil
	}
	if err := t.Require("read limits", keyCol, ColN, ColXbar, ColMRbar, ColSigma, ColUCL, ColLCL, ColUCLMR); err != nil {
		return nil, err
	}
	out := make([]Limits, 0, t.Len())
	for i, row := range t.Rows {
		r := &rowReader{t: t, row: row}
		l := Limits{
			Key:    normalizeKey(r.str(keyCol)),
			N:      r.intCell(ColN),
			Center: r.floatCell(ColXbar),
			MRBar:  r.optCell(ColMRbar),
			Sigma:  r.optCell(ColSigma),
			UCL:    r.optCell(ColUCL),
			LCL:    r.optCell(ColLCL),
			UCLMR:  r.optCell(ColUCLMR),
			LCLMR:  r.floatCell(ColLCLMR),
		}
		if r.err != nil {
			return nil, fmt.Errorf("limits row %d: %w", i+1, r.err)
		}
		out = append(out, l)
	}
	return out, nil
}

// ReadAlerts parses an alerts table written by AlertsTable.
func ReadAlerts(t *Table, keyCol string) ([]AlertSummary, error) {
	if t.Empty() {
		return nil, nil
	}
	if err := t.Require("read alerts", keyCol, ColNPoints, ColNAlerts, ColFirst, ColLast); err != nil {
		return nil, err
	}
	out := make([]AlertSummary, 0, t.Len())
	for i, row := range t.Rows {
		r := &rowReader{t: t, row: row}
		a := AlertSummary{
			Key:        normalizeKey(r.str(keyCol)),
			NPoints:    r.intCell(ColNPoints),
			NAlerts:    r.intCell(ColNAlerts),
			RuleCounts: newRuleCounts(),
		}
		a.FirstAlert, _ = ParseTimestamp(r.str(ColFirst))
		a.LastAlert, _ = ParseTimestamp(r.str(ColLast))
		for _, rule := range AlertRules {
			a.RuleCounts[rule] = r.intCell(string(rule))
		}
		if r.err != nil {
			return nil, fmt.Errorf("alerts row %d: %w", i+1, r.err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ReadCapability parses a capability table written by CapabilityTable.
func ReadCapability(t *Table, keyCol string) ([]Capability, error) {
	if t.Empty() {
		return nil, nil
	}
	if err := t.Require("read capability", keyCol, ColN, ColNMR, ColMean, ColLSL, ColUSL); err != nil {
		return nil, err
	}
	out := make([]Capability, 0, t.Len())
	for i, row := range t.Rows {
		r := &rowReader{t: t, row: row}
		c := Capability{
			Key:             normalizeKey(r.str(keyCol)),
			N:               r.intCell(ColN),
			NMR:             r.intCell(ColNMR),
			Mean:            r.floatCell(ColMean),
			StdOverall:      r.optCell(ColStd),
			MRBar:           r.optCell(ColMRbarCap),
			SigmaWithin:     r.optCell(ColSigmaW),
			LSL:             r.floatCell(ColLSL),
			USL:             r.floatCell(ColUSL),
			TolSpan:         r.floatCell(ColTolSpan),
			Pp:              r.optCell(ColPp),
			Ppk:             r.optCell(ColPpk),
			Cp:              r.optCell(ColCp),
			Cpk:             r.optCell(ColCpk),
			TolVariantsLSL:  r.intCell(ColVarLSL),
			TolVariantsUSL:  r.intCell(ColVarUSL),
			TolInconsistent: r.boolCell(ColTolIncon),
		}
		if r.err != nil {
			return nil, fmt.Errorf("capability row %d: %w", i+1, r.err)
		}
		out = append(out, c)
	}
	return out, nil
}
