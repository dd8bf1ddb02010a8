package lake

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/spc"
)

const metaSchemaURL = "https://github.com/gherrador/tightening-project/schemas/gold_build_meta.json"

//go:embed schema/gold_build_meta.schema.json
var metaSchemaJSON []byte

var (
	metaSchemaOnce sync.Once
	metaSchema     *jsonschema.Schema
	metaSchemaErr  error
)

// BuildMeta is the sidecar written after a gold build's tables.
type BuildMeta struct {
	Layer          string            `json:"layer"`
	Version        string            `json:"version"`
	BuildID        string            `json:"build_id"`
	Tier           string            `json:"tier"`
	Asof           string            `json:"asof"`
	BaselineWindow string            `json:"baseline_window"`
	Year           int               `json:"year"`
	Month          int               `json:"month"`
	Cols           spc.Columns       `json:"cols"`
	MinPoints      int               `json:"min_points"`
	Filters        MetaFilters       `json:"filters"`
	Inputs         MetaInputs        `json:"inputs"`
	Outputs        map[string]string `json:"outputs"`
	BuiltAtUTC     string            `json:"built_at_utc"`
	Counts         map[string]int    `json:"counts"`
}

// MetaFilters records the step filter a build ran with. StepIDsCount is
// nil when no filter was given.
type MetaFilters struct {
	StepIDsProvided bool `json:"step_ids_provided"`
	StepIDsCount    *int `json:"step_ids_count"`
}

// MetaInputs lists the silver locations a build read.
type MetaInputs struct {
	SilverMonthDir     string   `json:"silver_month_dir,omitempty"`
	BaselineSilverDirs []string `json:"baseline_silver_dirs"`
}

func compiledMetaSchema() (*jsonschema.Schema, error) {
	metaSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(metaSchemaURL, bytes.NewReader(metaSchemaJSON)); err != nil {
			metaSchemaErr = fmt.Errorf("add meta schema: %w", err)
			return
		}
		metaSchema, metaSchemaErr = compiler.Compile(metaSchemaURL)
	})
	return metaSchema, metaSchemaErr
}

// ValidateMeta checks encoded meta against the embedded schema.
func ValidateMeta(data []byte) error {
	schema, err := compiledMetaSchema()
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.NewParsingError("build meta is not valid json", err)
	}
	if err := schema.Validate(payload); err != nil {
		return apperrors.NewAppError(apperrors.ErrTypeValidation, "build meta failed schema validation", err)
	}
	return nil
}

// WriteMeta validates and writes meta as indented JSON.
func WriteMeta(path string, meta *BuildMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode build meta: %w", err)
	}
	if err := ValidateMeta(data); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewStorageError("failed to create meta directory", err).WithContext("path", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return apperrors.NewStorageError("failed to write build meta", err).WithContext("path", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return apperrors.NewStorageError("failed to move build meta into place", err).WithContext("path", path)
	}
	return nil
}

// ReadMeta loads and validates a meta file.
func ReadMeta(path string) (*BuildMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateMeta(data); err != nil {
		return nil, err
	}
	var meta BuildMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, apperrors.NewParsingError("failed to decode build meta", err).WithContext("path", path)
	}
	return &meta, nil
}
