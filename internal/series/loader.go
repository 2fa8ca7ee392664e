package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"chartengine/internal/model"
)

// ErrUnsupportedFormat is returned by LoadFile for extensions other than
// .xlsx and .csv.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// LoadFile reads raw rows from r, picking the decoder from the extension
// of name. The rows still need Validate.
func LoadFile(name string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(r)
	case ".csv":
		return LoadCSV(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
}

// LoadXLSX returns the rows of the first sheet of a workbook.
func LoadXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &model.ValidationError{Reason: "workbook has no sheets", Err: model.ErrEmptyInput}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// LoadCSV returns every record of a comma-separated file. Records may
// have differing field counts; short ones are dropped later by Validate.
func LoadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}
