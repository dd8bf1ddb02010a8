package lake

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/spc"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTable loads a CSV or XLSX part file into a table. The first row is the
// header. A missing file yields an error matching os.ErrNotExist.
func ReadTable(path string) (*spc.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, apperrors.NewParsingError(fmt.Sprintf("unsupported table format %q", filepath.Ext(path)), nil).
			WithContext("path", path)
	}
}

func readCSV(path string) (*spc.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &spc.Table{}, nil
	}
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read csv header", err).WithContext("path", path)
	}

	t := spc.NewTable(trimHeader(header)...)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError("failed to read csv record", err).WithContext("path", path)
		}
		t.Append(rec...)
	}
	return t, nil
}

func readXLSX(path string) (*spc.Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open workbook", err).WithContext("path", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &spc.Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read sheet", err).
			WithContext("path", path).
			WithContext("sheet", sheets[0])
	}
	if len(rows) == 0 {
		return &spc.Table{}, nil
	}

	t := spc.NewTable(trimHeader(rows[0])...)
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		t.Append(row...)
	}
	return t, nil
}

func trimHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(h)
	}
	return out
}
