package lake

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/exporter"
	"github.com/gherrador/tightening-project/internal/shared/testutil"
	"github.com/gherrador/tightening-project/internal/spc"
)

func TestReadTable_CSV(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		wantCols []string
		wantRows int
	}{
		{"plain", "STEP_ID,FinalTorque\n10,1.5\n20,2.5\n", []string{"STEP_ID", "FinalTorque"}, 2},
		{"bom and padded header", "\ufeff STEP_ID , FinalTorque\n10,1.5\n", []string{"STEP_ID", "FinalTorque"}, 1},
		{"ragged rows", "STEP_ID,FinalTorque\n10\n20,2.5,extra\n", []string{"STEP_ID", "FinalTorque"}, 2},
		{"empty file", "", nil, 0},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "t"+string(rune('a'+i))+".csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			table, err := ReadTable(path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCols, table.Columns)
			assert.Equal(t, tt.wantRows, table.Len())
		})
	}
}

func TestReadTable_MissingFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadTable_UnsupportedFormat(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "part-0000.parquet"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestReadTable_XLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silver.xlsx")

	src := spc.NewTable(testutil.SilverHeader...)
	src.Append("10", "2025-01-02 08:00:00", "10.5", "8", "12")
	src.Append("20", "2025-01-02 08:01:00", "9.75", "8", "12")
	require.NoError(t, exporter.NewXLSXWriter(nil).WriteSheets(path, exporter.Sheet{Name: "silver", Table: src}))

	got, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, testutil.SilverHeader, got.Columns)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "10", got.Rows[0][0])
	assert.Equal(t, "9.75", got.Rows[1][2])
}
