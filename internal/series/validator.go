// Package series turns raw spreadsheet rows into a validated PriceSeries.
package series

import (
	"math"
	"strconv"
	"strings"

	"chartengine/internal/model"
)

// Column positions in an uploaded row.
const (
	ColDate = iota
	ColTime
	ColOpen
	ColHigh
	ColLow
	ColClose

	MinColumns = ColClose + 1
)

// Report summarizes a validation pass.
type Report struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// Validate keeps the well-formed rows of raw, in order, and builds a
// series from them. Malformed rows are dropped silently; an input with no
// valid rows fails with a ValidationError wrapping model.ErrEmptyInput.
// raw is not modified.
func Validate(raw [][]string) (*model.PriceSeries, error) {
	s, _, err := ValidateWithReport(raw)
	return s, err
}

// ValidateWithReport is Validate plus row counts for logging and metrics.
func ValidateWithReport(raw [][]string) (*model.PriceSeries, Report, error) {
	rep := Report{Rows: len(raw)}
	bars := make([]model.PriceBar, 0, len(raw))
	allOpen := true

	for _, row := range raw {
		bar, ok := parseRow(row)
		if !ok {
			continue
		}
		allOpen = allOpen && bar.HasOpen()
		bars = append(bars, bar)
	}

	// Open is optional per row, but a series carries it on every bar or
	// on none.
	if !allOpen {
		for i := range bars {
			bars[i].Open = nil
		}
	}

	rep.Kept = len(bars)
	rep.Dropped = rep.Rows - rep.Kept
	if len(bars) == 0 {
		return nil, rep, &model.ValidationError{Reason: "file contains no usable price rows", Err: model.ErrEmptyInput}
	}
	s, err := model.NewPriceSeries(bars)
	if err != nil {
		return nil, rep, err
	}
	return s, rep, nil
}

// parseRow returns the bar for a valid row.
func parseRow(row []string) (model.PriceBar, bool) {
	if len(row) < MinColumns {
		return model.PriceBar{}, false
	}
	date := strings.TrimSpace(row[ColDate])
	if date == "" {
		return model.PriceBar{}, false
	}
	high, ok := parseFinite(row[ColHigh])
	if !ok {
		return model.PriceBar{}, false
	}
	low, ok := parseFinite(row[ColLow])
	if !ok {
		return model.PriceBar{}, false
	}
	closePrice, ok := parseFinite(row[ColClose])
	if !ok {
		return model.PriceBar{}, false
	}

	var open *float64
	if v, ok := parseFinite(row[ColOpen]); ok {
		open = &v
	}

	label := date
	if t := strings.TrimSpace(row[ColTime]); t != "" {
		label = date + " " + t
	}

	bar, err := model.NewPriceBar(label, open, high, low, closePrice)
	if err != nil {
		return model.PriceBar{}, false
	}
	return bar, true
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
