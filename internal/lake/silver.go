package lake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gherrador/tightening-project/internal/config"
	"github.com/gherrador/tightening-project/internal/spc"
)

// defaultReadConcurrency bounds parallel month reads
const defaultReadConcurrency = 4

// SilverReader loads monthly silver part files.
type SilverReader struct {
	paths       *config.Paths
	format      string
	concurrency int
	logger      *slog.Logger
}

// NewSilverReader creates a reader for part files of the given format
// ("csv" or "xlsx").
func NewSilverReader(paths *config.Paths, format string, logger *slog.Logger) *SilverReader {
	if format == "" {
		format = "csv"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SilverReader{
		paths:       paths,
		format:      format,
		concurrency: defaultReadConcurrency,
		logger:      logger.With(slog.String("component", "lake.silver")),
	}
}

// MonthPath returns the part file location for one month.
func (r *SilverReader) MonthPath(m Month) string {
	return r.paths.SilverPart(m.Year, m.Month, r.format)
}

// ReadMonth loads one month. The bool result is false when the month has no
// part file.
func (r *SilverReader) ReadMonth(ctx context.Context, m Month) (*spc.Table, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path := r.MonthPath(m)
	t, err := ReadTable(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read silver %s: %w", m, err)
	}
	return t, true, nil
}

// MonthsRead describes the outcome of ReadMonths.
type MonthsRead struct {
	Table   *spc.Table
	Found   []string // part file paths that existed, oldest first
	Missing []string
}

// ReadMonths loads the months concurrently and concatenates them in the
// given order. Months without a part file are skipped.
func (r *SilverReader) ReadMonths(ctx context.Context, months []Month) (*MonthsRead, error) {
	tables := make([]*spc.Table, len(months))
	found := make([]bool, len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, m := range months {
		g.Go(func() error {
			t, ok, err := r.ReadMonth(gctx, m)
			if err != nil {
				return err
			}
			tables[i], found[i] = t, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &MonthsRead{Found: []string{}, Missing: []string{}}
	present := make([]*spc.Table, 0, len(months))
	for i, m := range months {
		if !found[i] {
			out.Missing = append(out.Missing, r.MonthPath(m))
			continue
		}
		out.Found = append(out.Found, r.MonthPath(m))
		present = append(present, tables[i])
	}
	out.Table = spc.Concat(present...)

	if len(out.Missing) > 0 {
		r.logger.WarnContext(ctx, "silver months missing from baseline",
			"missing", len(out.Missing),
			"found", len(out.Found),
		)
	}
	return out, nil
}
