package lake

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/spc"
)

func validSPCMeta() *BuildMeta {
	n := 2
	return &BuildMeta{
		Layer:          "gold",
		Version:        "spc_v2_imr",
		BuildID:        "b-1",
		Tier:           "core",
		Asof:           "2025-03",
		BaselineWindow: "12m",
		Year:           2025,
		Month:          3,
		Cols:           spc.DefaultColumns(),
		MinPoints:      200,
		Filters:        MetaFilters{StepIDsProvided: true, StepIDsCount: &n},
		Inputs: MetaInputs{
			SilverMonthDir:     "/lake/silver/year=2025/month=03",
			BaselineSilverDirs: []string{"/lake/silver/year=2025/month=02"},
		},
		Outputs: map[string]string{
			"spc_points": "/p", "spc_alerts": "/a", "spc_limits": "/l",
		},
		BuiltAtUTC: "2025-04-01T00:00:00Z",
		Counts: map[string]int{
			"eval_rows": 10, "baseline_rows": 20, "limits_rows": 1, "points_rows": 10, "alerts_rows": 1,
		},
	}
}

func TestWriteMetaAndReadMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_meta", "gold_build_meta.json")
	meta := validSPCMeta()

	require.NoError(t, WriteMeta(path, meta))

	got, err := ReadMeta(path)
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "STEP_ID", doc["cols"].(map[string]any)["key"])
	assert.Contains(t, string(raw), "\n  \"layer\": \"gold\"")
}

func TestWriteMeta_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *BuildMeta)
	}{
		{"unknown version", func(m *BuildMeta) { m.Version = "spc_v1" }},
		{"bad tier", func(m *BuildMeta) { m.Tier = "gold" }},
		{"bad asof", func(m *BuildMeta) { m.Asof = "2025-13" }},
		{"bad window", func(m *BuildMeta) { m.BaselineWindow = "12" }},
		{"negative count", func(m *BuildMeta) { m.Counts["eval_rows"] = -1 }},
		{"missing spc count", func(m *BuildMeta) { delete(m.Counts, "alerts_rows") }},
		{"missing spc output", func(m *BuildMeta) { delete(m.Outputs, "spc_limits") }},
		{"capability without capability output", func(m *BuildMeta) {
			m.Version = "capability_v1"
			m.Counts = map[string]int{"baseline_rows": 1, "capability_rows": 1}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := validSPCMeta()
			tt.mutate(meta)
			path := filepath.Join(t.TempDir(), "meta.json")

			err := WriteMeta(path, meta)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
			assert.NoFileExists(t, path)
		})
	}
}

func TestValidateMeta_NoStepFilter(t *testing.T) {
	meta := validSPCMeta()
	meta.Filters = MetaFilters{}
	data, err := json.Marshal(meta)
	require.NoError(t, err)

	assert.NoError(t, ValidateMeta(data))
	assert.Contains(t, string(data), `"step_ids_count":null`)
}

func TestReadMeta_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := ReadMeta(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}
