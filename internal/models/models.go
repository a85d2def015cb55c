package models

import (
	"time"
)

// StepsPerDay is the number of 15-minute records in one day.
const StepsPerDay = 96

// Resolution is the fixed spacing between consecutive station records.
const Resolution = 15 * time.Minute

// StationRecord is one row of PV station telemetry.
type StationRecord struct {
	Timestamp         time.Time
	Power             float64 // measured AC output (W, or MW for scaled stations)
	TotalIrradiance   float64 // lmd_totalirrad, used as plane-of-array irradiance
	DiffuseIrradiance float64 // lmd_diffuseirrad
	Temperature       float64 // lmd_temperature, used as cell temperature
	LMDPressure       float64
	LMDWindDirection  float64
	LMDWindSpeed      float64

	NWPGlobalIrradiance float64
	NWPDirectIrradiance float64
	NWPTemperature      float64
	NWPHumidity         float64
	NWPWindSpeed        float64
	NWPWindDirection    float64
	NWPPressure         float64
}

// StationMetadata is the static description of one station, looked up by
// its integer index in the metadata table.
type StationMetadata struct {
	Index      int
	StationID  string // file stem of the station's telemetry, e.g. "station00"
	Numeric    map[string]float64
	Attributes map[string]string
}

// Value returns a numeric metadata column.
func (m StationMetadata) Value(column string) (float64, bool) {
	v, ok := m.Numeric[column]
	return v, ok
}

// Irradiance is one clear-sky irradiance sample in W/m².
type Irradiance struct {
	Timestamp time.Time
	GHI       float64
	DNI       float64
	DHI       float64
}

// WindowResult is the output of a K_PV range computation. All slices have
// length End-Start.
type WindowResult struct {
	Start          int       `json:"start"`
	End            int       `json:"end"`
	Model          string    `json:"model"`
	KPV            []float64 `json:"k_pv"`
	MeanKPV        float64   `json:"mean_k_pv"` // over unmasked steps
	ReferencePower []float64 `json:"reference_power"`
	MeasuredPower  []float64 `json:"measured_power"`
	WindowLabels   []string  `json:"window_labels"`
}

// DayReport holds the error statistics of one 96-step sub-window.
type DayReport struct {
	Label string  `json:"label"`
	Start int     `json:"start"` // offset within the window
	End   int     `json:"end"`
	MAPE  float64 `json:"mape"`
	RMSE  float64 `json:"rmse"`
	MAE   float64 `json:"mae"`
}
