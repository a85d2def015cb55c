package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/timeconv"
)

var (
	ErrMissingColumn = errors.New("missing column")
	ErrNoTimestamp   = errors.New("irradiance sample has no timestamp")
)

// Station file header columns.
const (
	ColDateTime          = "date_time"
	ColPower             = "power"
	ColTotalIrradiance   = "lmd_totalirrad"
	ColDiffuseIrradiance = "lmd_diffuseirrad"
	ColTemperature       = "lmd_temperature"
	ColPressure          = "lmd_pressure"
	ColWindDirection     = "lmd_winddirection"
	ColWindSpeed         = "lmd_windspeed"
	ColNWPGlobal         = "nwp_globalirrad"
	ColNWPDirect         = "nwp_directirrad"
	ColNWPTemperature    = "nwp_temperature"
	ColNWPHumidity       = "nwp_humidity"
	ColNWPWindSpeed      = "nwp_windspeed"
	ColNWPWindDirection  = "nwp_winddirection"
	ColNWPPressure       = "nwp_pressure"

	// Some releases of the dataset misspell the NWP direct column.
	colNWPDirectAlt = "nwp_dirrectirrad"

	ColStationID = "Station_ID"
)

// StationColumns is the header of a station telemetry file.
var StationColumns = []string{
	ColDateTime,
	ColNWPGlobal, ColNWPDirect, ColNWPTemperature, ColNWPHumidity,
	ColNWPWindSpeed, ColNWPWindDirection, ColNWPPressure,
	ColTotalIrradiance, ColDiffuseIrradiance, ColTemperature,
	ColPressure, ColWindDirection, ColWindSpeed,
	ColPower,
}

var requiredStationColumns = []string{ColDateTime, ColPower, ColTotalIrradiance, ColDiffuseIrradiance, ColTemperature}

func stationTypes() map[string]series.Type {
	types := map[string]series.Type{ColDateTime: series.String, colNWPDirectAlt: series.Float}
	for _, c := range StationColumns[1:] {
		types[c] = series.Float
	}
	return types
}

// ReadStationCSV parses a station telemetry file. Timestamps in the file
// are naive UTC and are returned in UTC. Unparseable numeric cells become
// NaN.
func ReadStationCSV(r io.Reader) ([]models.StationRecord, error) {
	df := dataframe.ReadCSV(r, dataframe.WithTypes(stationTypes()))
	if df.Err != nil {
		return nil, fmt.Errorf("read station csv: %w", df.Err)
	}
	if err := requireColumns(df, requiredStationColumns); err != nil {
		return nil, err
	}

	col := func(names ...string) []float64 {
		for _, name := range names {
			if hasColumn(df, name) {
				return df.Col(name).Float()
			}
		}
		return nil
	}
	at := func(vals []float64, i int) float64 {
		if vals == nil {
			return math.NaN()
		}
		return vals[i]
	}

	stamps := df.Col(ColDateTime).Records()
	var (
		power    = col(ColPower)
		total    = col(ColTotalIrradiance)
		diffuse  = col(ColDiffuseIrradiance)
		temp     = col(ColTemperature)
		pressure = col(ColPressure)
		windDir  = col(ColWindDirection)
		windSpd  = col(ColWindSpeed)
		nwpGHI   = col(ColNWPGlobal)
		nwpDNI   = col(ColNWPDirect, colNWPDirectAlt)
		nwpTemp  = col(ColNWPTemperature)
		nwpHum   = col(ColNWPHumidity)
		nwpWS    = col(ColNWPWindSpeed)
		nwpWD    = col(ColNWPWindDirection)
		nwpPres  = col(ColNWPPressure)
	)

	records := make([]models.StationRecord, len(stamps))
	for i, s := range stamps {
		ts, err := timeconv.StrToUTC(s)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		records[i] = models.StationRecord{
			Timestamp:           ts,
			Power:               at(power, i),
			TotalIrradiance:     at(total, i),
			DiffuseIrradiance:   at(diffuse, i),
			Temperature:         at(temp, i),
			LMDPressure:         at(pressure, i),
			LMDWindDirection:    at(windDir, i),
			LMDWindSpeed:        at(windSpd, i),
			NWPGlobalIrradiance: at(nwpGHI, i),
			NWPDirectIrradiance: at(nwpDNI, i),
			NWPTemperature:      at(nwpTemp, i),
			NWPHumidity:         at(nwpHum, i),
			NWPWindSpeed:        at(nwpWS, i),
			NWPWindDirection:    at(nwpWD, i),
			NWPPressure:         at(nwpPres, i),
		}
	}
	return records, nil
}

// ReadMetadataCSV parses metadata.csv. Row position is the station index;
// numeric columns go to Numeric, everything else to Attributes.
func ReadMetadataCSV(r io.Reader) ([]models.StationMetadata, error) {
	df := dataframe.ReadCSV(r, dataframe.WithTypes(map[string]series.Type{ColStationID: series.String}))
	if df.Err != nil {
		return nil, fmt.Errorf("read metadata csv: %w", df.Err)
	}
	if err := requireColumns(df, []string{ColStationID}); err != nil {
		return nil, err
	}

	ids := df.Col(ColStationID).Records()
	out := make([]models.StationMetadata, len(ids))
	for i, id := range ids {
		out[i] = models.StationMetadata{
			Index:      i,
			StationID:  id,
			Numeric:    make(map[string]float64),
			Attributes: make(map[string]string),
		}
	}

	for _, name := range df.Names() {
		if name == ColStationID {
			continue
		}
		s := df.Col(name)
		switch s.Type() {
		case series.Float, series.Int:
			for i, v := range s.Float() {
				out[i].Numeric[name] = v
			}
		default:
			for i, v := range s.Records() {
				out[i].Attributes[name] = v
			}
		}
	}
	return out, nil
}

// ReadIrradianceCSV parses a clear-sky irradiance table with ghi, dni and
// dhi columns. A date_time column is optional; without it the samples have
// zero timestamps and must be re-indexed before use.
func ReadIrradianceCSV(r io.Reader) ([]models.Irradiance, error) {
	df := dataframe.ReadCSV(r, dataframe.WithTypes(map[string]series.Type{
		ColDateTime: series.String,
		"ghi":       series.Float,
		"dni":       series.Float,
		"dhi":       series.Float,
	}))
	if df.Err != nil {
		return nil, fmt.Errorf("read irradiance csv: %w", df.Err)
	}
	if err := requireColumns(df, []string{"ghi", "dni", "dhi"}); err != nil {
		return nil, err
	}

	ghi, dni, dhi := df.Col("ghi").Float(), df.Col("dni").Float(), df.Col("dhi").Float()
	var stamps []string
	if hasColumn(df, ColDateTime) {
		stamps = df.Col(ColDateTime).Records()
	}

	out := make([]models.Irradiance, len(ghi))
	for i := range ghi {
		if math.IsNaN(ghi[i]) || math.IsNaN(dni[i]) || math.IsNaN(dhi[i]) {
			return nil, fmt.Errorf("row %d: non-numeric irradiance", i+1)
		}
		out[i] = models.Irradiance{GHI: ghi[i], DNI: dni[i], DHI: dhi[i]}
		if stamps != nil {
			ts, err := timeconv.StrToUTC(stamps[i])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			out[i].Timestamp = ts
		}
	}
	return out, nil
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func requireColumns(df dataframe.DataFrame, names []string) error {
	for _, name := range names {
		if !hasColumn(df, name) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return nil
}

// FormatFloat renders a value for CSV output, writing NaN as an empty cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
