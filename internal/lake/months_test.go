package lake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaselineMonths(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month int
		n     int
		want  []string
	}{
		{"within year", 2025, 6, 3, []string{"2025-03", "2025-04", "2025-05"}},
		{"crosses year", 2025, 2, 3, []string{"2024-11", "2024-12", "2025-01"}},
		{"twelve months", 2025, 3, 12, []string{
			"2024-03", "2024-04", "2024-05", "2024-06", "2024-07", "2024-08",
			"2024-09", "2024-10", "2024-11", "2024-12", "2025-01", "2025-02",
		}},
		{"zero", 2025, 3, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range BaselineMonths(tt.year, tt.month, tt.n) {
				got = append(got, m.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
