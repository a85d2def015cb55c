package chart

import (
	"bytes"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pvclearsky/internal/models"
)

func window() *models.WindowResult {
	n := 2 * models.StepsPerDay
	res := &models.WindowResult{
		Start:          96,
		End:            96 + n,
		Model:          "direct_dc",
		KPV:            make([]float64, n),
		ReferencePower: make([]float64, n),
		MeasuredPower:  make([]float64, n),
		WindowLabels:   []string{"2018-08-16 00:00", "2018-08-17 00:00"},
	}
	for i := 0; i < n; i++ {
		g := math.Max(0, math.Sin(2*math.Pi*float64(i%96-24)/96))
		res.ReferencePower[i] = 32 * g
		res.MeasuredPower[i] = 30 * g
		if g > 0 {
			res.KPV[i] = 30.0 / 32
		}
	}
	res.MeasuredPower[50] = math.NaN()
	return res
}

func decode(t *testing.T, b []byte) (int, int) {
	t.Helper()
	cfg, err := png.DecodeConfig(bytes.NewReader(b))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestKPV(t *testing.T) {
	b, err := KPV(window())
	require.NoError(t, err)
	w, h := decode(t, b)
	assert.Greater(t, w, h)

	_, err = KPV(nil)
	assert.ErrorIs(t, err, ErrEmptyChart)
	_, err = KPV(&models.WindowResult{KPV: []float64{math.NaN()}})
	assert.ErrorIs(t, err, ErrEmptyChart)
}

func TestClearSky(t *testing.T) {
	reports := []models.DayReport{
		{Label: "2018-08-16 00:00", Start: 0, End: 96, MAPE: 6.7, RMSE: 1.2, MAE: 0.8},
		{Label: "2018-08-17 00:00", Start: 96, End: 192, MAPE: 6.7, RMSE: 1.2, MAE: 0.8},
	}
	b, err := ClearSky(window(), reports)
	require.NoError(t, err)
	decode(t, b)

	b, err = ClearSky(window(), nil)
	require.NoError(t, err)
	decode(t, b)

	_, err = ClearSky(&models.WindowResult{}, nil)
	assert.ErrorIs(t, err, ErrEmptyChart)
}

func TestCard(t *testing.T) {
	var reports []models.DayReport
	for i := 0; i < 8; i++ {
		reports = append(reports, models.DayReport{Label: "2018-08-16 00:00", MAPE: 5, RMSE: 1, MAE: 1})
	}
	b, err := Card(CardData{StationID: "station00", Result: window(), Reports: reports})
	require.NoError(t, err)
	w, h := decode(t, b)
	assert.Equal(t, CardWidth, w)
	assert.Equal(t, CardHeight, h)

	_, err = Card(CardData{})
	assert.ErrorIs(t, err, ErrEmptyChart)
}

func TestCache(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Date(2018, 8, 16, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", []byte("png"))
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("png"), got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired")

	c.Set("b", []byte("x"))
	assert.Len(t, c.entries, 1, "expired entries evicted on Set")
}
