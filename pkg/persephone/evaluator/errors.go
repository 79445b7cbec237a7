package evaluator

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput indicates a precondition violation in the evaluation input.
	ErrInvalidInput = errors.New("invalid evaluation input")

	// ErrInvalidOptions indicates the engine was configured with unusable thresholds.
	ErrInvalidOptions = errors.New("invalid evaluation options")
)

// ValidationError describes which input field broke a precondition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the preconditions: a non-empty series, matching
// lengths for every supplied parallel sequence and finite actual/predicted
// values. Numeric degeneracies are not errors and are not checked here.
func (in *Input) Validate() error {
	if in == nil {
		return invalid("input", "missing")
	}
	n := len(in.Actual)
	if n == 0 {
		return invalid("actual", "must contain at least one value")
	}
	if len(in.Predicted) != n {
		return invalid("predicted", "length %d does not match actual length %d", len(in.Predicted), n)
	}
	if in.Horizons != nil && len(in.Horizons) != n {
		return invalid("horizons", "length %d does not match actual length %d", len(in.Horizons), n)
	}
	if in.PeakFlags != nil && len(in.PeakFlags) != n {
		return invalid("peak_flags", "length %d does not match actual length %d", len(in.PeakFlags), n)
	}
	if in.Weights != nil && len(in.Weights) != n {
		return invalid("weights", "length %d does not match actual length %d", len(in.Weights), n)
	}

	for i := 0; i < n; i++ {
		if !finite(in.Actual[i]) {
			return invalid("actual", "value at index %d is not a finite number", i)
		}
		if !finite(in.Predicted[i]) {
			return invalid("predicted", "value at index %d is not a finite number", i)
		}
	}
	for i, w := range in.Weights {
		if !finite(w) || w < 0 {
			return invalid("weights", "value at index %d must be a finite non-negative number", i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
