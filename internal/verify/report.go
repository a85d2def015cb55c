package verify

import (
	"fmt"

	"github.com/lox/pvclearsky/internal/models"
)

// Report splits the series into consecutive day-length windows and scores
// each one. The last window is clipped to the series length. labels[d] names
// window d; missing labels fall back to the window offset.
func Report(measured, reference []float64, labels []string) ([]models.DayReport, error) {
	if len(measured) != len(reference) {
		return nil, ErrLengthMismatch
	}

	var reports []models.DayReport
	for day, lo := 0, 0; lo < len(measured); day, lo = day+1, lo+models.StepsPerDay {
		hi := min(lo+models.StepsPerDay, len(measured))

		label := fmt.Sprintf("+%d", lo)
		if day < len(labels) {
			label = labels[day]
		}

		r, err := score(measured[lo:hi], reference[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", label, err)
		}
		r.Label = label
		r.Start = lo
		r.End = hi
		reports = append(reports, r)
	}
	return reports, nil
}

func score(y, pred []float64) (models.DayReport, error) {
	var r models.DayReport
	var err error
	if r.MAPE, err = MAPE(y, pred); err != nil {
		return r, fmt.Errorf("mape: %w", err)
	}
	if r.RMSE, err = RMSE(y, pred); err != nil {
		return r, fmt.Errorf("rmse: %w", err)
	}
	if r.MAE, err = MAE(y, pred); err != nil {
		return r, fmt.Errorf("mae: %w", err)
	}
	return r, nil
}
