package testutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// SilverHeader is the column layout of fixture silver files.
var SilverHeader = []string{"STEP_ID", "DateTime", "FinalTorque", "TorqueMinTolerance", "TorqueMaxTolerance"}

// SilverRow is one tightening record of a fixture month.
type SilverRow struct {
	Step   string
	Time   time.Time
	Torque float64
	LSL    float64
	USL    float64
}

// Series returns one row per value for step, a minute apart from start,
// with tolerances 8..12.
func Series(step string, start time.Time, values ...float64) []SilverRow {
	rows := make([]SilverRow, len(values))
	for i, v := range values {
		rows[i] = SilverRow{Step: step, Time: start.Add(time.Duration(i) * time.Minute), Torque: v, LSL: 8, USL: 12}
	}
	return rows
}

// Repeat cycles pattern until n values are produced.
func Repeat(n int, pattern ...float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

// SilverPartPath returns the csv part location of a month under lakeRoot.
func SilverPartPath(lakeRoot string, year, month int) string {
	return filepath.Join(lakeRoot, "silver", fmt.Sprintf("year=%04d", year), fmt.Sprintf("month=%02d", month), "part-0000.csv")
}

// WriteSilverMonth writes rows as the csv part of a silver month and returns its path.
func WriteSilverMonth(t testing.TB, lakeRoot string, year, month int, rows []SilverRow) string {
	t.Helper()

	path := SilverPartPath(lakeRoot, year, month)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create silver dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create silver part: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	records := [][]string{SilverHeader}
	for _, r := range rows {
		records = append(records, []string{
			r.Step,
			r.Time.Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(r.Torque, 'f', -1, 64),
			strconv.FormatFloat(r.LSL, 'f', -1, 64),
			strconv.FormatFloat(r.USL, 'f', -1, 64),
		})
	}
	if err := w.WriteAll(records); err != nil {
		t.Fatalf("write silver part: %v", err)
	}
	return path
}
