package spc

import (
	"strconv"
	"time"
)

var t0 = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func at(minute int) time.Time {
	return t0.Add(time.Duration(minute) * time.Minute)
}

// series builds measurements of one key at consecutive minutes.
func series(key string, values ...float64) []Measurement {
	out := make([]Measurement, len(values))
	for i, v := range values {
		out[i] = Measurement{Key: key, Time: at(i), Value: v}
	}
	return out
}

// toleranced sets constant LSL/USL on measurements.
func toleranced(ms []Measurement, lsl, usl float64) []Measurement {
	for i := range ms {
		ms[i].LSL = lsl
		ms[i].USL = usl
	}
	return ms
}

func silverTable(rows ...[]string) *Table {
	t := NewTable("STEP_ID", "DateTime", "FinalTorque", "TorqueMinTolerance", "TorqueMaxTolerance")
	for _, r := range rows {
		t.Append(r...)
	}
	return t
}

func silverRows(key string, values ...float64) [][]string {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{key, at(i).Format("2006-01-02 15:04:05"), strconv.FormatFloat(v, 'f', -1, 64), "8", "12"}
	}
	return rows
}
