package policy

import "math"

// CalibrationResult is the employee-facing feedback for a calibration check.
type CalibrationResult string

const (
	BelowRange CalibrationResult = "below_range"
	InRange    CalibrationResult = "in_range"
	AboveRange CalibrationResult = "above_range"
)

// CalibrationFeedback compares value with the inclusive [min, max] band.
func CalibrationFeedback(value, min, max float64) CalibrationResult {
	switch {
	case value < min:
		return BelowRange
	case value > max:
		return AboveRange
	default:
		return InRange
	}
}

// ValidateCalibrationBounds requires finite values with min <= target <= max.
func ValidateCalibrationBounds(min, target, max float64) error {
	for _, v := range []float64{min, target, max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return deny(ErrInvalidTarget, "Calibration values must be finite numbers")
		}
	}
	if min > target || target > max {
		return deny(ErrInvalidTarget, "Must satisfy min <= target <= max")
	}
	return nil
}
