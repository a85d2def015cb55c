// Package kpv computes the clear-sky performance index: the ratio of
// measured PV output to a modeled clear-sky reference.
package kpv

import (
	"errors"
	"fmt"
	"math"

	"github.com/lox/pvclearsky/internal/clearsky"
	"github.com/lox/pvclearsky/internal/models"
)

var (
	ErrInvalidWindow  = errors.New("invalid window")
	ErrLengthMismatch = errors.New("measured and reference lengths differ")
	ErrUnknownFloor   = errors.New("unknown reference floor")
)

// Floor decides when a reference value is too small to divide by. An
// exactly-zero reference is always masked.
type Floor struct {
	Limit     float64
	Inclusive bool
}

var (
	// FloorExactZero masks only a reference of exactly 0. Negative
	// references are divided through.
	FloorExactZero = Floor{Limit: 0}
	// FloorNonPositive masks zero and negative references.
	FloorNonPositive = Floor{Limit: 0, Inclusive: true}
	// FloorBelowOne masks references below 1.
	FloorBelowOne = Floor{Limit: 1}
	// FloorAtMostOne masks references of 1 or less.
	FloorAtMostOne = Floor{Limit: 1, Inclusive: true}
)

var floorNames = map[string]Floor{
	"exact_zero":   FloorExactZero,
	"non_positive": FloorNonPositive,
	"below_one":    FloorBelowOne,
	"at_most_one":  FloorAtMostOne,
}

// ParseFloor maps a config name to a Floor.
func ParseFloor(name string) (Floor, error) {
	f, ok := floorNames[name]
	if !ok {
		return Floor{}, fmt.Errorf("%w: %q", ErrUnknownFloor, name)
	}
	return f, nil
}

// Masks reports whether ref falls under the floor.
func (f Floor) Masks(ref float64) bool {
	if ref == 0 {
		return true
	}
	if f.Inclusive {
		return ref <= f.Limit
	}
	return ref < f.Limit
}

// Index returns measured[i]/reference[i], or 0 where the reference is
// masked by the floor.
func Index(measured, reference []float64, floor Floor) ([]float64, error) {
	if len(measured) != len(reference) {
		return nil, ErrLengthMismatch
	}
	out := make([]float64, len(measured))
	for i := range measured {
		if floor.Masks(reference[i]) {
			continue
		}
		out[i] = measured[i] / reference[i]
	}
	return out, nil
}

// Mean averages the index over the steps the floor leaves unmasked. A
// genuine zero (measured 0 against a usable reference) counts.
func Mean(index, reference []float64, floor Floor) float64 {
	var sum float64
	var n int
	for i, v := range index {
		if i >= len(reference) || floor.Masks(reference[i]) || math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Calculator runs a reference model over a record window and derives the
// index. It holds no state between calls.
type Calculator struct {
	Model clearsky.Model
	Floor Floor
}

func NewCalculator(m clearsky.Model, floor Floor) *Calculator {
	return &Calculator{Model: m, Floor: floor}
}

// RangeCalc computes K_PV over records[start:end]. The window must cover at
// least one day of records.
func (c *Calculator) RangeCalc(records []models.StationRecord, start, end int) (*models.WindowResult, error) {
	if err := CheckWindow(len(records), start, end); err != nil {
		return nil, err
	}

	window := records[start:end]
	reference, err := c.Model.Reference(window)
	if err != nil {
		return nil, fmt.Errorf("%s reference: %w", c.Model.Name(), err)
	}
	if len(reference) != len(window) {
		return nil, fmt.Errorf("%s reference: %w", c.Model.Name(), ErrLengthMismatch)
	}

	measured := make([]float64, len(window))
	for i, r := range window {
		measured[i] = r.Power
	}

	index, err := Index(measured, reference, c.Floor)
	if err != nil {
		return nil, err
	}

	return &models.WindowResult{
		Start:          start,
		End:            end,
		Model:          c.Model.Name(),
		KPV:            index,
		MeanKPV:        Mean(index, reference, c.Floor),
		ReferencePower: reference,
		MeasuredPower:  measured,
		WindowLabels:   Labels(window),
	}, nil
}

// CheckWindow validates [start, end) against n available records.
func CheckWindow(n, start, end int) error {
	switch {
	case start < 0 || end > n:
		return fmt.Errorf("%w: [%d, %d) outside %d records", ErrInvalidWindow, start, end, n)
	case end-start < models.StepsPerDay:
		return fmt.Errorf("%w: [%d, %d) shorter than %d steps", ErrInvalidWindow, start, end, models.StepsPerDay)
	}
	return nil
}

// LabelLayout formats day-boundary labels.
const LabelLayout = "2006-01-02 15:04"

// Labels returns one label per day boundary of the window.
func Labels(window []models.StationRecord) []string {
	var labels []string
	for i := 0; i < len(window); i += models.StepsPerDay {
		labels = append(labels, window[i].Timestamp.Format(LabelLayout))
	}
	return labels
}
