// Package config provides configuration loading and the lake path layout for
// the tightening SPC system.
//
// # Configuration Sources
//
// Configuration is assembled in layers, later layers overriding earlier ones:
//
//  1. Default() values
//  2. YAML file (config.yaml, configs/config.yaml, or an explicit path)
//  3. Environment variables with the TIGHTENING_ prefix
//
// Environment variables follow the nesting of the struct:
//
//	TIGHTENING_SERVER_PORT=8080
//	TIGHTENING_LAKE_ROOT=/data/lake
//	TIGHTENING_LAKE_DEFAULT_TIER=core
//	TIGHTENING_SPC_MIN_POINTS=200
//	TIGHTENING_SPC_COLUMNS_KEY=STEP_ID
//	TIGHTENING_LOGGING_LEVEL=debug
//
// The merged result is validated with go-playground/validator tags.
//
// # Lake Layout
//
// Paths resolves every silver and gold location under the lake root:
//
//	paths, _ := config.NewPaths(cfg.Lake.Root)
//	silver := paths.SilverPart(2025, 3, "csv")
//	limits := paths.GoldAsofPart(config.DatasetSPCLimits, "core", "12m", 2025, 3, "csv")
package config
