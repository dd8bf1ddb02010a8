package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gherrador/tightening-project/internal/spc"
)

// CSVWriter writes spc tables as CSV files
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger.With(slog.String("component", "exporter.csv"))}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	BOMPrefix bool // UTF-8 BOM for Excel
}

// WriteTable replaces filePath with the header and rows of t. Parent
// directories are created as needed.
func (w *CSVWriter) WriteTable(filePath string, t *spc.Table, options WriteOptions) error {
	if t == nil {
		t = &spc.Table{}
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := WriteCSV(tmp, t, options); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filePath, err)
	}

	w.logger.Debug("Wrote CSV file",
		slog.String("file_path", filePath),
		slog.Int("record_count", t.Len()))
	return nil
}

// WriteCSV encodes t to out.
func WriteCSV(out io.Writer, t *spc.Table, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := out.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(out)
	if len(t.Columns) > 0 {
		if err := writer.Write(t.Columns); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range t.Rows {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
