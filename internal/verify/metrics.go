// Package verify scores a modeled power curve against measured output.
package verify

import (
	"errors"
	"math"
)

var (
	ErrEmptyMetricWindow = errors.New("no qualifying samples in metric window")
	ErrLengthMismatch    = errors.New("actual and predicted lengths differ")
)

// MAPE returns the mean absolute percentage error. Samples where either
// value is zero, or the prediction is NaN, are skipped.
func MAPE(y, pred []float64) (float64, error) {
	if len(y) != len(pred) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	var n int
	for i := range y {
		if y[i] == 0 || pred[i] == 0 || math.IsNaN(pred[i]) {
			continue
		}
		sum += math.Abs(y[i]-pred[i]) / y[i]
		n++
	}
	if n == 0 {
		return 0, ErrEmptyMetricWindow
	}
	return sum / float64(n) * 100, nil
}

// RMSE returns the root-mean-square error over samples with a non-NaN prediction.
func RMSE(y, pred []float64) (float64, error) {
	if len(y) != len(pred) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	var n int
	for i := range y {
		if math.IsNaN(pred[i]) {
			continue
		}
		d := y[i] - pred[i]
		sum += d * d
		n++
	}
	if n == 0 {
		return 0, ErrEmptyMetricWindow
	}
	return math.Sqrt(sum / float64(n)), nil
}

// MAE returns the mean absolute error over samples with a non-NaN prediction.
func MAE(y, pred []float64) (float64, error) {
	if len(y) != len(pred) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	var n int
	for i := range y {
		if math.IsNaN(pred[i]) {
			continue
		}
		sum += math.Abs(y[i] - pred[i])
		n++
	}
	if n == 0 {
		return 0, ErrEmptyMetricWindow
	}
	return sum / float64(n), nil
}
