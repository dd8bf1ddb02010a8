package spc

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// I-MR constants for subgroup size 2
const (
	D2 = 1.128
	D3 = 0.0
	D4 = 3.267

	// SigmaMultiplier places the individuals limits at three sigma.
	SigmaMultiplier = 3.0

	// DefaultMinPoints is the smallest baseline that yields a limits or capability record.
	DefaultMinPoints = 200

	// NearLimitZ is the |z| above which a point is considered close to a control limit.
	NearLimitZ = 2.0
)

// Rule identifies which control rule a scored point triggered.
type Rule string

const (
	RuleOK       Rule = "OK"
	RuleI3Sigma  Rule = "I_3SIGMA"
	RuleMR3Sigma Rule = "MR_3SIGMA"
)

// AlertRules lists the rules that raise an alert, in report column order.
var AlertRules = []Rule{RuleI3Sigma, RuleMR3Sigma}

// Float is a float64 that may be undefined.
// Undefined values serialize as JSON null and as an empty CSV cell.
type Float struct {
	V     float64
	Valid bool
}

// Some wraps v, treating NaN and infinities as undefined.
func Some(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}
	return Float{V: v, Valid: true}
}

// None returns an undefined Float.
func None() Float {
	return Float{}
}

// Or returns the value or def when undefined.
func (f Float) Or(def float64) float64 {
	if !f.Valid {
		return def
	}
	return f.V
}

// Ptr returns a pointer to the value, or nil when undefined.
func (f Float) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.V
	return &v
}

// String formats the value for tabular output.
func (f Float) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.V, 'g', -1, 64)
}

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.V)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}

// Measurement is one cleaned tightening record.
// LSL and USL are only read by the capability estimator.
type Measurement struct {
	Key   string
	Time  time.Time
	Value float64
	LSL   float64
	USL   float64
}

// Limits holds the I-MR control limits of one step, estimated from a baseline.
type Limits struct {
	Key    string  `json:"key"`
	N      int     `json:"n"`
	Center float64 `json:"center"`
	MRBar  Float   `json:"mrbar"`
	Sigma  Float   `json:"sigma"`
	UCL    Float   `json:"ucl"`
	LCL    Float   `json:"lcl"`
	UCLMR  Float   `json:"ucl_mr"`
	LCLMR  float64 `json:"lcl_mr"`
}

// ScoredPoint is an evaluation record joined to its step's limits and flagged.
type ScoredPoint struct {
	Key   string    `json:"key"`
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`

	Limits Limits `json:"-"`

	MR            Float `json:"mr"`
	Z             Float `json:"z"`
	OOCIndividual bool  `json:"is_ooc_i"`
	OOCMR         bool  `json:"is_ooc_mr"`
	Rule          Rule  `json:"rule"`
	Alert         bool  `json:"is_alert"`
}

// AlertSummary rolls up the alerts raised by one step.
type AlertSummary struct {
	Key        string       `json:"key"`
	NPoints    int          `json:"n_points"`
	NAlerts    int          `json:"n_alerts"`
	FirstAlert time.Time    `json:"first_alert"`
	LastAlert  time.Time    `json:"last_alert"`
	RuleCounts map[Rule]int `json:"rule_counts"`
}

// Count returns the number of alerts raised under rule.
func (a AlertSummary) Count(rule Rule) int {
	return a.RuleCounts[rule]
}

// Total returns the number of alerts across every rule.
func (a AlertSummary) Total() int {
	total := 0
	for _, n := range a.RuleCounts {
		total += n
	}
	return total
}

// Capability holds process-capability ratios of one step.
type Capability struct {
	Key             string  `json:"key"`
	N               int     `json:"n"`
	NMR             int     `json:"n_mr"`
	Mean            float64 `json:"mean"`
	StdOverall      Float   `json:"std_overall"`
	MRBar           Float   `json:"mrbar"`
	SigmaWithin     Float   `json:"sigma_within"`
	LSL             float64 `json:"lsl"`
	USL             float64 `json:"usl"`
	TolSpan         float64 `json:"tol_span"`
	Pp              Float   `json:"pp"`
	Ppk             Float   `json:"ppk"`
	Cp              Float   `json:"cp"`
	Cpk             Float   `json:"cpk"`
	TolVariantsLSL  int     `json:"tol_variants_lsl"`
	TolVariantsUSL  int     `json:"tol_variants_usl"`
	TolInconsistent bool    `json:"tol_inconsistent"`
}
