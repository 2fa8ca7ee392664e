package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across package boundaries.
var (
	ErrEmptyInput       = errors.New("no valid rows")
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidParam     = errors.New("invalid indicator parameter")
)

// ValidationError reports a malformed or empty input series.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil && e.Reason == "" {
		return "validation: " + e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return "validation: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InsufficientDataError is returned when a series is shorter than the
// minimum length an indicator needs to produce one output point.
type InsufficientDataError struct {
	Indicator string
	Required  int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need at least %d bars, got %d", e.Indicator, e.Required, e.Got)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ParameterError is returned for invalid indicator parameters. It is
// raised before any computation starts.
type ParameterError struct {
	Indicator string
	Param     string
	Reason    string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Indicator, e.Param, e.Reason)
}

func (e *ParameterError) Is(target error) bool { return target == ErrInvalidParam }
