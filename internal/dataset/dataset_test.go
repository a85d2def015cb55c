package dataset

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/lox/pvclearsky/internal/clearsky"
	"github.com/lox/pvclearsky/internal/ingest"
	"github.com/lox/pvclearsky/internal/kpv"
	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/store"
	"github.com/lox/pvclearsky/internal/timeconv"
)

var day0 = time.Date(2018, 8, 15, 16, 0, 0, 0, time.UTC)

// irradiance is a half-sine daylight profile over steps 24..72 of each day.
func irradiance(step int) float64 {
	s := step % models.StepsPerDay
	if s < 24 || s > 72 {
		return 0
	}
	return 1000 * math.Sin(math.Pi*float64(s-24)/48)
}

func stationCSV(start time.Time, n int) string {
	var b strings.Builder
	b.WriteString("date_time,lmd_totalirrad,lmd_diffuseirrad,lmd_temperature,lmd_pressure,power\n")
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * models.Resolution)
		g := irradiance(i)
		fmt.Fprintf(&b, "%s,%s,%s,25,1000,%s\n", ts.Format(timeconv.Layout),
			ingest.FormatFloat(g), ingest.FormatFloat(0.2*g), ingest.FormatFloat(0.03*g))
	}
	return b.String()
}

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		ingest.MetadataFile: "Station_ID,Capacity,Panel_Size,Panel_Number,PV_Technology\n" +
			"station00,20000,1.6,8000,Poly-Si\n" +
			"station01,30000,1.9,10000,Mono-Si\n",
		"station00.csv": stationCSV(day0, 2*models.StepsPerDay),
		"station01.csv": stationCSV(day0.Add(24*time.Hour), 2*models.StepsPerDay),
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestDataset_Metadata(t *testing.T) {
	ds, err := New(DirSource{Dir: writeDataset(t)}, timeconv.UTC)
	require.NoError(t, err)

	meta := ds.Metadata()
	require.Len(t, meta, 2)
	assert.Equal(t, "station01", meta[1].StationID)

	files, err := ds.ShowFiles()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"metadata.csv", "station00.csv", "station01.csv"}, files)

	_, err = ds.Station(5)
	assert.ErrorIs(t, err, ErrUnknownStation)
	_, err = ds.ReadStation(5)
	assert.ErrorIs(t, err, ErrUnknownStation)
}

func TestDataset_ReadStationTimezones(t *testing.T) {
	dir := writeDataset(t)

	utc, err := New(DirSource{Dir: dir}, timeconv.UTC)
	require.NoError(t, err)
	local, err := New(DirSource{Dir: dir}, timeconv.UTC8)
	require.NoError(t, err)

	ru, err := utc.ReadStation(0)
	require.NoError(t, err)
	rl, err := local.ReadStation(0)
	require.NoError(t, err)
	require.Len(t, ru, 192)
	require.Len(t, rl, 192)

	assert.True(t, ru[0].Timestamp.Equal(rl[0].Timestamp), "same instant")
	assert.Equal(t, 16, ru[0].Timestamp.Hour())
	assert.Equal(t, 0, rl[0].Timestamp.Hour())
	assert.Equal(t, 16, rl[0].Timestamp.Day())
	_, off := rl[0].Timestamp.Zone()
	assert.Equal(t, 8*3600, off)
}

func TestDataset_QC(t *testing.T) {
	dir := writeDataset(t)

	raw, err := New(DirSource{Dir: dir}, timeconv.UTC)
	require.NoError(t, err)
	all, err := raw.ReadStation(0)
	require.NoError(t, err)

	qc, err := New(DirSource{Dir: dir}, timeconv.UTC, WithQC(ingest.DefaultQC))
	require.NoError(t, err)
	assert.True(t, qc.QC())
	kept, err := qc.ReadStation(0)
	require.NoError(t, err)

	want := 0
	for _, r := range all {
		if ingest.PassesQC(r, ingest.DefaultQC) {
			want++
		}
	}
	assert.Equal(t, want, len(kept))
	assert.Less(t, len(kept), len(all), "night records fail closure")
	for _, r := range kept {
		assert.Greater(t, r.TotalIrradiance, 50.0)
	}
}

func TestDataset_SelectDateRange(t *testing.T) {
	ds, err := New(DirSource{Dir: writeDataset(t)}, timeconv.UTC8)
	require.NoError(t, err)

	got, err := ds.SelectDateRange(0, "2018-08-16 00:00:00", "2018-08-16 00:30:00")
	require.NoError(t, err)
	require.Len(t, got, 3, "bounds are inclusive")
	assert.True(t, got[0].Timestamp.Equal(day0))

	got, err = ds.SelectDateRange(0, "2018-08-16", "2018-08-16 23:45")
	require.NoError(t, err)
	assert.Len(t, got, 96)

	_, err = ds.SelectDateRange(0, "16/08/2018", "2018-08-17")
	assert.Error(t, err)
}

func TestDataset_DateIntersection(t *testing.T) {
	ds, err := New(DirSource{Dir: writeDataset(t)}, timeconv.UTC)
	require.NoError(t, err)

	in, err := ds.DateIntersection(0, 1)
	require.NoError(t, err)
	assert.True(t, in.A.Start.Equal(day0))
	assert.True(t, in.Overlap.Start.Equal(day0.Add(24*time.Hour)))
	assert.True(t, in.Overlap.End.Equal(in.A.End))
	assert.True(t, in.B.End.After(in.Overlap.End))
}

func TestDataset_InfoAndStationInfo(t *testing.T) {
	ds, err := New(DirSource{Dir: writeDataset(t)}, timeconv.UTC)
	require.NoError(t, err)

	info, err := ds.Info()
	require.NoError(t, err)
	assert.Equal(t, 384, info.Total)
	assert.Equal(t, 192, info.Stations["station01"])

	stats, err := ds.StationInfo(0)
	require.NoError(t, err)
	byName := map[string]ColumnStats{}
	for _, s := range stats {
		byName[s.Column] = s
	}

	temp := byName[ingest.ColTemperature]
	assert.Equal(t, 192, temp.Count)
	assert.InDelta(t, 25, temp.Mean, 1e-9)
	assert.InDelta(t, 0, temp.Std, 1e-9)

	power := byName[ingest.ColPower]
	assert.Equal(t, 0.0, power.Min)
	assert.InDelta(t, 30, power.Max, 1e-9)
	assert.GreaterOrEqual(t, power.Median, power.Q25)
	assert.GreaterOrEqual(t, power.Q75, power.Median)

	assert.Equal(t, 0, byName[ingest.ColNWPHumidity].Count, "absent column")
}

func TestDataset_PanelArea(t *testing.T) {
	ds, err := New(DirSource{Dir: writeDataset(t)}, timeconv.UTC)
	require.NoError(t, err)

	area, err := ds.PanelArea(1, "Panel_Size", "Panel_Number")
	require.NoError(t, err)
	assert.InDelta(t, 19000, area, 1e-9)

	_, err = ds.PanelArea(1, "Panel_Size", "PV_Technology")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestStoreSource_MatchesDirSource(t *testing.T) {
	dir := writeDataset(t)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db, time.UTC)
	require.NoError(t, st.Migrate())
	_, err = ingest.NewImporter(st).ImportDir(dir)
	require.NoError(t, err)

	fromDir, err := New(DirSource{Dir: dir}, timeconv.UTC8)
	require.NoError(t, err)
	fromStore, err := New(StoreSource{Store: st}, timeconv.UTC8)
	require.NoError(t, err)

	a, err := fromDir.ReadStation(1)
	require.NoError(t, err)
	b, err := fromStore.ReadStation(1)
	require.NoError(t, err)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].Timestamp.Equal(b[i].Timestamp))
		assert.Equal(t, a[i].Power, b[i].Power)
	}

	files, err := fromStore.ShowFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata.csv", "station00.csv", "station01.csv"}, files)
}

func TestIrradianceSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clearsky.csv")
	require.NoError(t, os.WriteFile(path, []byte("ghi,dni,dhi\n0,0,0\n500,700,80\n"), 0o644))

	_, err := IrradianceSource(clearsky.IrradianceConfig{Source: "table", Path: path}, nil)
	assert.ErrorIs(t, err, clearsky.ErrInvalidModelConfig, "no timestamps and no start")

	src, err := IrradianceSource(clearsky.IrradianceConfig{Source: "table", Path: path, Start: day0, Step: 15 * time.Minute}, nil)
	require.NoError(t, err)
	irr, err := src.Irradiance(day0.Add(15*time.Minute), clearsky.SolarPosition{})
	require.NoError(t, err)
	assert.Equal(t, 700.0, irr.DNI)

	src, err = IrradianceSource(clearsky.IrradianceConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, src)

	_, err = IrradianceSource(clearsky.IrradianceConfig{Source: "store", Name: "x"}, nil)
	assert.ErrorIs(t, err, ErrNoIrradianceStore)

	src, err = IrradianceSource(clearsky.IrradianceConfig{Source: "haurwitz"}, nil)
	require.NoError(t, err)
	assert.IsType(t, clearsky.Haurwitz{}, src)
}

func TestDataset_Analyze(t *testing.T) {
	ds, err := New(DirSource{Dir: writeDataset(t)}, timeconv.UTC8)
	require.NoError(t, err)

	calc := kpv.NewCalculator(&clearsky.DirectDC{Module: clearsky.ModuleParams{PDC0: 32, GammaPDC: -0.004}}, kpv.FloorBelowOne)
	a, err := ds.Analyze(calc, 0, 0, 192)
	require.NoError(t, err)

	assert.Equal(t, "UTC+8", a.Timezone)
	assert.Equal(t, "station00", a.Station.StationID)
	require.Len(t, a.Result.KPV, 192)
	assert.Equal(t, []string{"2018-08-16 00:00", "2018-08-17 00:00"}, a.Result.WindowLabels)
	assert.Empty(t, a.ReportError)
	require.Len(t, a.Reports, 2)

	// Power is 0.03*G against a 0.032*G reference at 25 °C.
	assert.InDelta(t, 0.9375, a.Result.KPV[48], 1e-9)
	assert.Equal(t, 0.0, a.Result.KPV[0])
	assert.InDelta(t, 100.0/15, a.Reports[0].MAPE, 1e-6)

	_, err = ds.Analyze(calc, 0, 100, 150)
	assert.ErrorIs(t, err, kpv.ErrInvalidWindow)
}
