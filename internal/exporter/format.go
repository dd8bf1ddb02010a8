package exporter

import (
	"math"
	"strconv"
	"strings"
)

// cellValue types a table cell for a spreadsheet. Numeric text becomes a
// float64; everything else stays text.
func cellValue(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && !strings.ContainsAny(trimmed, "xX") {
		return f
	}
	return s
}

// sheetName clamps a name to Excel's 31 character limit
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
