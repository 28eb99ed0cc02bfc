package fl

import (
	"errors"
	"fmt"
	"math"
)

// ValidationError reports why a submission was rejected at intake. It
// wraps ErrInvalidSubmission so callers can branch on the class of
// failure without inspecting the message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSubmission
}

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structural integrity of a submission before it is
// admitted to the aggregation pool. A submission that fails here never
// reaches the aggregator, which protects the per-coordinate arithmetic
// from shape-mismatch crashes.
func Validate(sub ModelSubmission) error {
	if sub.ParticipantID == "" {
		return validationErr("participant_id", "must not be empty")
	}
	if sub.DatasetSize <= 0 {
		return validationErr("dataset_size", "must be positive, got %d", sub.DatasetSize)
	}
	if err := validateMetrics(sub.Metrics); err != nil {
		return err
	}
	if len(sub.Weights.Architecture.Layers) == 0 {
		return validationErr("weights.architecture", "must declare at least one layer")
	}
	if len(sub.Weights.Layers) == 0 {
		return validationErr("weights.layers", "must contain at least one layer")
	}
	if len(sub.Weights.Layers) != len(sub.Weights.Architecture.Layers) {
		return validationErr("weights.layers",
			"layer count %d does not match architecture layer count %d",
			len(sub.Weights.Layers), len(sub.Weights.Architecture.Layers))
	}

	for i, layer := range sub.Weights.Layers {
		if err := validateLayer(i, layer); err != nil {
			return err
		}
	}

	return nil
}

func validateMetrics(m SubmissionMetrics) error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"metrics.loss", m.Loss},
		{"metrics.mae", m.MAE},
		{"metrics.accuracy", m.Accuracy},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return validationErr(v.name, "must be finite, got %v", v.value)
		}
	}
	if m.Accuracy < 0 || m.Accuracy > 1 {
		return validationErr("metrics.accuracy", "must be in [0,1], got %v", m.Accuracy)
	}

	return nil
}

func validateLayer(idx int, layer LayerWeights) error {
	field := fmt.Sprintf("weights.layers[%d]", idx)

	if len(layer.Weights) == 0 && len(layer.Bias) == 0 {
		return validationErr(field, "layer has neither weights nor bias")
	}

	if len(layer.Weights) > 0 {
		cols := len(layer.Weights[0])
		for r, row := range layer.Weights {
			if len(row) != cols {
				return validationErr(field, "ragged weight matrix: row %d has %d columns, expected %d", r, len(row), cols)
			}
		}
	}

	return nil
}

// IsValidationError reports whether err originated in submission intake
// validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSubmission)
}
