// Package chart renders K_PV windows as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lox/pvclearsky/internal/models"
)

var ErrEmptyChart = errors.New("nothing to plot")

const (
	Width  = 16 * vg.Inch
	Height = 6 * vg.Inch
)

var (
	kpvColor       = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	measuredColor  = color.RGBA{R: 0xD9, G: 0x4E, B: 0x5D, A: 255}
	referenceColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	unityColor     = color.RGBA{A: 255}
)

// KPV plots the index with a y=1 guide and day-boundary ticks.
func KPV(res *models.WindowResult) ([]byte, error) {
	if res == nil || len(res.KPV) == 0 {
		return nil, ErrEmptyChart
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("K_PV (%s)", res.Model)
	p.X.Label.Text = "Time step (15-min)"
	p.Y.Label.Text = "K_PV"
	p.X.Min = float64(res.Start)
	p.X.Max = float64(res.End)
	p.X.Tick.Marker = dayTicks(res)
	p.Add(plotter.NewGrid())

	pts := series(res.Start, res.KPV)
	if len(pts) == 0 {
		return nil, ErrEmptyChart
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("k_pv line: %w", err)
	}
	line.LineStyle.Color = kpvColor
	line.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(2), vg.Points(1), vg.Points(2)}

	unity, err := plotter.NewLine(plotter.XYs{{X: float64(res.Start), Y: 1}, {X: float64(res.End), Y: 1}})
	if err != nil {
		return nil, fmt.Errorf("unity line: %w", err)
	}
	unity.LineStyle.Color = unityColor
	unity.LineStyle.Width = vg.Points(1)
	unity.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(line, unity)
	return render(p)
}

// ClearSky plots measured against reference power and annotates each day
// with its error statistics.
func ClearSky(res *models.WindowResult, reports []models.DayReport) ([]byte, error) {
	if res == nil || len(res.MeasuredPower) == 0 {
		return nil, ErrEmptyChart
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Measured vs clear-sky (%s)", res.Model)
	p.X.Label.Text = "Time step (15-min)"
	p.Y.Label.Text = "Power"
	p.X.Min = float64(res.Start)
	p.X.Max = float64(res.End)
	p.X.Tick.Marker = dayTicks(res)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	mPts, rPts := series(res.Start, res.MeasuredPower), series(res.Start, res.ReferencePower)
	if len(mPts) == 0 || len(rPts) == 0 {
		return nil, ErrEmptyChart
	}
	measured, err := plotter.NewLine(mPts)
	if err != nil {
		return nil, fmt.Errorf("measured line: %w", err)
	}
	measured.LineStyle.Color = measuredColor

	reference, err := plotter.NewLine(rPts)
	if err != nil {
		return nil, fmt.Errorf("reference line: %w", err)
	}
	reference.LineStyle.Color = referenceColor
	reference.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}

	p.Add(measured, reference)
	p.Legend.Add("PV_MEAS", measured)
	p.Legend.Add("PV_CLR", reference)

	if len(reports) > 0 {
		top := peak(res.MeasuredPower, res.ReferencePower)
		var xy plotter.XYLabels
		for _, r := range reports {
			x := float64(res.Start + r.Start + 37)
			for i, text := range []string{
				fmt.Sprintf("MAPE: %.1f%%", r.MAPE),
				fmt.Sprintf("RMSE: %.1f", r.RMSE),
				fmt.Sprintf("MAE: %.1f", r.MAE),
			} {
				xy.XYs = append(xy.XYs, plotter.XY{X: x, Y: top * (0.95 - 0.07*float64(i))})
				xy.Labels = append(xy.Labels, text)
			}
		}
		labels, err := plotter.NewLabels(xy)
		if err != nil {
			return nil, fmt.Errorf("annotations: %w", err)
		}
		p.Add(labels)
	}

	return render(p)
}

// series drops NaN samples, which the plotter rejects.
func series(start int, vals []float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(start + i), Y: v})
	}
	return xys
}

func dayTicks(res *models.WindowResult) plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, 0, len(res.WindowLabels))
	for i, label := range res.WindowLabels {
		ticks = append(ticks, plot.Tick{Value: float64(res.Start + i*models.StepsPerDay), Label: label})
	}
	return ticks
}

func peak(sets ...[]float64) float64 {
	m := 1.0
	for _, s := range sets {
		for _, v := range s {
			if !math.IsNaN(v) && v > m {
				m = v
			}
		}
	}
	return m
}

func render(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return nil, fmt.Errorf("create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}
