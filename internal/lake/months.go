package lake

import (
	"fmt"
	"time"
)

// Month identifies one silver partition.
type Month struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// BaselineMonths returns the n months preceding (year, month), oldest first.
// A 12 month window for 2025-03 spans 2024-03 through 2025-02.
func BaselineMonths(year, month, n int) []Month {
	if n <= 0 {
		return nil
	}
	out := make([]Month, n)
	anchor := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		d := anchor.AddDate(0, -(n - i), 0)
		out[i] = Month{Year: d.Year(), Month: int(d.Month())}
	}
	return out
}
