package spc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Columns names the input columns the engine reads.
type Columns struct {
	Key   string `json:"key"`
	Time  string `json:"time"`
	Value string `json:"value"`
	LSL   string `json:"lsl"`
	USL   string `json:"usl"`
}

// DefaultColumns returns the column names of the silver tightening layer.
func DefaultColumns() Columns {
	return Columns{
		Key:   "STEP_ID",
		Time:  "DateTime",
		Value: "FinalTorque",
		LSL:   "TorqueMinTolerance",
		USL:   "TorqueMaxTolerance",
	}
}

// Base returns the key, time and value columns.
func (c Columns) Base() []string {
	return []string{c.Key, c.Time, c.Value}
}

// WithTolerance returns the base columns plus LSL and USL.
func (c Columns) WithTolerance() []string {
	return append(c.Base(), c.LSL, c.USL)
}

// MissingColumnsError reports every required column absent from a table.
type MissingColumnsError struct {
	Op      string
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing columns [%s]", e.Op, strings.Join(e.Missing, ", "))
}

// Table is a column-oriented dataset of string cells, as read from a lake file.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable creates a table with the given header.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table is nil or has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Append adds a row. Short rows are padded with empty cells.
func (t *Table) Append(row ...string) {
	if len(row) < len(t.Columns) {
		padded := make([]string, len(t.Columns))
		copy(padded, row)
		row = padded
	}
	t.Rows = append(t.Rows, row)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(column string) int {
	if t.index == nil || len(t.index) != len(t.Columns) {
		t.index = make(map[string]int, len(t.Columns))
		for i, c := range t.Columns {
			if _, dup := t.index[c]; !dup {
				t.index[c] = i
			}
		}
	}
	if i, ok := t.index[column]; ok {
		return i
	}
	return -1
}

// Require checks that every column is present.
func (t *Table) Require(op string, columns ...string) error {
	var missing []string
	for _, c := range columns {
		if t.Index(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Op: op, Missing: missing}
	}
	return nil
}

// KeySet builds a Filter set from group keys, normalized the way
// Measurements normalizes them.
func KeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[normalizeKey(strings.TrimSpace(k))] = true
	}
	return set
}

// Filter returns a table with the rows whose column value is in keep.
func (t *Table) Filter(column string, keep map[string]bool) *Table {
	out := &Table{Columns: t.Columns}
	idx := t.Index(column)
	if idx < 0 {
		return out
	}
	for _, row := range t.Rows {
		if idx < len(row) && keep[normalizeKey(strings.TrimSpace(row[idx]))] {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Concat appends rows of other tables, mapping them by column name.
// Columns missing from a source table are left empty.
func Concat(tables ...*Table) *Table {
	var out *Table
	for _, t := range tables {
		if t == nil {
			continue
		}
		if out == nil {
			out = &Table{Columns: append([]string(nil), t.Columns...)}
		}
		mapping := make([]int, len(out.Columns))
		for i, c := range out.Columns {
			mapping[i] = t.Index(c)
		}
		for _, row := range t.Rows {
			dst := make([]string, len(out.Columns))
			for i, src := range mapping {
				if src >= 0 && src < len(row) {
					dst[i] = row[src]
				}
			}
			out.Rows = append(out.Rows, dst)
		}
	}
	if out == nil {
		return &Table{}
	}
	return out
}

// Measurements extracts typed records from the table. Rows with an empty key,
// an unparseable timestamp or a missing value are dropped, and so are rows
// missing a tolerance when withTolerance is set. The second result counts the
// dropped rows.
func (t *Table) Measurements(cols Columns, withTolerance bool) ([]Measurement, int) {
	if t.Empty() {
		return nil, 0
	}
	ki, ti, vi := t.Index(cols.Key), t.Index(cols.Time), t.Index(cols.Value)
	li, ui := t.Index(cols.LSL), t.Index(cols.USL)

	out := make([]Measurement, 0, len(t.Rows))
	dropped := 0
	for _, row := range t.Rows {
		m, ok := parseRow(row, ki, ti, vi)
		if ok && withTolerance {
			m.LSL, ok = cellFloat(row, li)
			if ok {
				m.USL, ok = cellFloat(row, ui)
			}
		}
		if !ok {
			dropped++
			continue
		}
		out = append(out, m)
	}
	return out, dropped
}

func parseRow(row []string, ki, ti, vi int) (Measurement, bool) {
	key := strings.TrimSpace(cell(row, ki))
	if key == "" {
		return Measurement{}, false
	}
	ts, ok := ParseTimestamp(cell(row, ti))
	if !ok {
		return Measurement{}, false
	}
	v, ok := cellFloat(row, vi)
	if !ok {
		return Measurement{}, false
	}
	return Measurement{Key: normalizeKey(key), Time: ts, Value: v}, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func cellFloat(row []string, i int) (float64, bool) {
	return ParseNumber(cell(row, i))
}

// ParseNumber parses a numeric cell. Empty, NaN and infinite cells are missing.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// normalizeKey turns integral float keys such as "12.0" into "12" so numeric
// steps read from different writers join.
func normalizeKey(key string) string {
	if !strings.ContainsAny(key, ".eE") {
		return key
	}
	f, err := strconv.ParseFloat(key, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return key
	}
	return strconv.FormatInt(int64(f), 10)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	// slash dates are month first, day first only when the first field exceeds 12
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// ParseTimestamp parses the timestamp layouts found in tightening exports.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// TimestampLayout is used when writing timestamps back to tables.
const TimestampLayout = time.RFC3339Nano

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(TimestampLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ComputeLimitsTable validates the baseline table and runs ComputeLimits.
// An empty table yields no limits and no error.
func ComputeLimitsTable(baseline *Table, cols Columns, minPoints int) ([]Limits, error) {
	if baseline.Empty() {
		return nil, nil
	}
	if err := baseline.Require("compute limits", cols.Base()...); err != nil {
		return nil, err
	}
	ms, _ := baseline.Measurements(cols, false)
	return ComputeLimits(ms, minPoints), nil
}

// ScorePointsTable validates the evaluation table and runs ScorePoints.
func ScorePointsTable(evaluation *Table, cols Columns, limits []Limits) ([]ScoredPoint, error) {
	if evaluation.Empty() || len(limits) == 0 {
		return nil, nil
	}
	if err := evaluation.Require("score points", cols.Base()...); err != nil {
		return nil, err
	}
	ms, _ := evaluation.Measurements(cols, false)
	return ScorePoints(ms, limits), nil
}

// ComputeCapabilityTable validates the baseline table and runs ComputeCapability.
func ComputeCapabilityTable(baseline *Table, cols Columns, opts CapabilityOptions) ([]Capability, error) {
	if baseline.Empty() {
		return nil, nil
	}
	if err := baseline.Require("compute capability", cols.WithTolerance()...); err != nil {
		return nil, err
	}
	ms, _ := baseline.Measurements(cols, true)
	return ComputeCapability(ms, opts), nil
}
