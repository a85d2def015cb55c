package dataset

import (
	"time"

	"github.com/lox/pvclearsky/internal/kpv"
	"github.com/lox/pvclearsky/internal/metrics"
	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/verify"
)

// Analysis is a K_PV window for one station with its per-day error report.
// A report failure does not invalidate the index itself.
type Analysis struct {
	Station     models.StationMetadata `json:"station"`
	Timezone    string                 `json:"timezone"`
	Result      *models.WindowResult   `json:"result"`
	Reports     []models.DayReport     `json:"reports,omitempty"`
	ReportError string                 `json:"report_error,omitempty"`
}

// Analyze computes K_PV over records [start, end) of a station and scores
// the measured power against the clear-sky reference day by day.
func (d *Dataset) Analyze(calc *kpv.Calculator, index, start, end int) (*Analysis, error) {
	meta, err := d.Station(index)
	if err != nil {
		return nil, err
	}
	records, err := d.ReadStation(index)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	res, err := calc.RangeCalc(records, start, end)
	model := calc.Model.Name()
	metrics.KPVDuration.WithLabelValues(model).Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.KPVComputations.WithLabelValues(model, "error").Inc()
		return nil, err
	}
	metrics.KPVComputations.WithLabelValues(model, "ok").Inc()

	a := &Analysis{Station: meta, Timezone: d.tz.String(), Result: res}
	reports, err := verify.Report(res.MeasuredPower, res.ReferencePower, res.WindowLabels)
	if err != nil {
		a.ReportError = err.Error()
	} else {
		a.Reports = reports
	}
	return a, nil
}
