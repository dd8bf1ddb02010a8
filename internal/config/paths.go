package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Gold datasets
const (
	DatasetSPCPoints  = "spc_points"
	DatasetSPCAlerts  = "spc_alerts"
	DatasetSPCLimits  = "spc_limits"
	DatasetCapability = "capability"

	SPCMetaFile        = "gold_build_meta.json"
	CapabilityMetaFile = "capability_build_meta.json"

	partName = "part-0000"
)

// Paths is the single source of truth for every lake path. Silver is
// partitioned by year/month; gold tables add a tier partition, and the
// baseline-derived tables (limits, capability) are keyed by window and asof.
//
//	lake/
//	  silver/year=2025/month=03/part-0000.csv
//	  gold/spc_points/tier=core/year=2025/month=03/part-0000.csv
//	  gold/spc_alerts/tier=core/year=2025/month=03/part-0000.csv
//	  gold/spc_limits/tier=core/baseline_window=12m/asof=2025-03/part-0000.csv
//	  gold/capability/tier=core/baseline_window=12m/asof=2025-03/part-0000.csv
//	  gold/_meta/tier=core/asof=2025-03/gold_build_meta.json
type Paths struct {
	Root      string
	SilverDir string
	GoldDir   string
	MetaDir   string
}

// NewPaths resolves the lake layout under root. A relative root is resolved
// against the working directory.
func NewPaths(root string) (*Paths, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("lake root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lake root %q: %w", root, err)
	}
	gold := filepath.Join(abs, "gold")
	return &Paths{
		Root:      abs,
		SilverDir: filepath.Join(abs, "silver"),
		GoldDir:   gold,
		MetaDir:   filepath.Join(gold, "_meta"),
	}, nil
}

// NormalizeTier trims and lowercases tier and rejects anything other than
// core or recurring.
func NormalizeTier(tier string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(tier))
	switch t {
	case TierCore, TierRecurring:
		return t, nil
	}
	return "", fmt.Errorf("invalid tier %q: expected %q or %q", tier, TierCore, TierRecurring)
}

// Asof formats the YYYY-MM partition label.
func Asof(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func monthDir(year, month int) string {
	return filepath.Join(fmt.Sprintf("year=%04d", year), fmt.Sprintf("month=%02d", month))
}

// SilverMonthDir is the silver partition directory for one month.
func (p *Paths) SilverMonthDir(year, month int) string {
	return filepath.Join(p.SilverDir, monthDir(year, month))
}

// SilverPart is the silver part file for one month; ext is "csv" or "xlsx".
func (p *Paths) SilverPart(year, month int, ext string) string {
	return filepath.Join(p.SilverMonthDir(year, month), partName+"."+ext)
}

// GoldMonthPart is a month-partitioned gold file (points, alerts).
func (p *Paths) GoldMonthPart(dataset, tier string, year, month int, ext string) string {
	return filepath.Join(p.GoldDir, dataset, "tier="+tier, monthDir(year, month), partName+"."+ext)
}

// GoldAsofPart is an asof-partitioned gold file (limits, capability).
func (p *Paths) GoldAsofPart(dataset, tier, window string, year, month int, ext string) string {
	return filepath.Join(p.GoldDir, dataset, "tier="+tier,
		"baseline_window="+window, "asof="+Asof(year, month), partName+"."+ext)
}

// MetaFile is the build meta path for a tier and month.
func (p *Paths) MetaFile(tier string, year, month int, name string) string {
	return filepath.Join(p.MetaDir, "tier="+tier, "asof="+Asof(year, month), name)
}

// EnsureDirectories creates the top-level lake directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.SilverDir, p.GoldDir, p.MetaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogPathResolution logs the resolved lake layout
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Lake path resolution",
		slog.Group("lake",
			slog.String("root", p.Root),
			slog.String("silver", p.SilverDir),
			slog.String("gold", p.GoldDir),
			slog.String("meta", p.MetaDir),
		))
}

// FileExists checks if a regular file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
