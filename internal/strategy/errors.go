package strategy

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when the evaluator is driven out of order.
var ErrNotReady = errors.New("evaluator is not ready")

// ConfigurationError reports a missing timeframe, column or series, or an
// invalid parameter. It is fatal to one strategy-asset combination only.
type ConfigurationError struct {
	Strategy string
	Field    string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("strategy %s: %s", e.Strategy, e.Message)
	}
	return fmt.Sprintf("strategy %s: %s: %s", e.Strategy, e.Field, e.Message)
}

// EvaluationError wraps a failure raised while evaluating one bar.
type EvaluationError struct {
	Strategy string
	Index    int
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("strategy %s: evaluation failed at bar %d: %v", e.Strategy, e.Index, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// ValidationError contains details about one invalid profile field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msg := "validation failed: "
	for i, err := range e {
		if i > 0 {
			msg += "; "
		}
		msg += err.Error()
	}
	return msg
}
