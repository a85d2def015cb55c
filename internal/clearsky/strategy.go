package clearsky

import (
	"fmt"

	"github.com/lox/pvclearsky/internal/models"
)

// DirectDC derates measured plane-of-array irradiance and cell temperature
// with the PVWatts DC model.
type DirectDC struct {
	Module ModuleParams
}

func (m *DirectDC) Name() string { return string(StrategyDirectDC) }

func (m *DirectDC) Reference(records []models.StationRecord) ([]float64, error) {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = PVWattsDC(r.TotalIrradiance, r.Temperature, m.Module)
	}
	return out, nil
}

// SolarDC replaces measured irradiance with a direct-beam estimate from the
// solar altitude at the site, keeping the measured cell temperature.
type SolarDC struct {
	Module ModuleParams
	Site   Site
}

func (m *SolarDC) Name() string { return string(StrategySolarDC) }

func (m *SolarDC) Reference(records []models.StationRecord) ([]float64, error) {
	out := make([]float64, len(records))
	for i, r := range records {
		pos := Position(r.Timestamp, m.Site.Latitude, m.Site.Longitude)
		g := DirectBeam(r.Timestamp, pos.Altitude)
		out[i] = PVWattsDC(g, r.Temperature, m.Module)
	}
	return out, nil
}

// ModelChain runs the full clear-sky chain: solar position, clear-sky
// irradiance, isotropic transposition, SAPM cell temperature, PVWatts DC
// and PVWatts inverter. Scale multiplies the final output to match the
// installed capacity of the station.
type ModelChain struct {
	Site       Site
	Surface    Surface
	Module     ModuleParams
	Inverter   InverterParams
	Irradiance IrradianceSource
	Output     Output
	Scale      float64
	TempAir    float64
	WindSpeed  float64
}

func (m *ModelChain) Name() string { return string(StrategyModelChain) }

// Step is the intermediate state of one model chain evaluation.
type Step struct {
	Position   SolarPosition
	Irradiance models.Irradiance
	POA        float64
	CellTemp   float64
	DC         float64
	AC         float64
}

// Run evaluates the chain for every record.
func (m *ModelChain) Run(records []models.StationRecord) ([]Step, error) {
	steps := make([]Step, len(records))
	for i, r := range records {
		pos := Position(r.Timestamp, m.Site.Latitude, m.Site.Longitude)
		irr, err := m.Irradiance.Irradiance(r.Timestamp, pos)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		poa := POA(irr, pos, m.Surface.Tilt, m.Surface.Azimuth, m.Surface.Albedo)
		tcell := CellTemperature(poa, m.TempAir, m.WindSpeed)
		dc := PVWattsDC(poa, tcell, m.Module)
		steps[i] = Step{
			Position:   pos,
			Irradiance: irr,
			POA:        poa,
			CellTemp:   tcell,
			DC:         dc,
			AC:         PVWattsAC(dc, m.Inverter),
		}
	}
	return steps, nil
}

func (m *ModelChain) Reference(records []models.StationRecord) ([]float64, error) {
	steps, err := m.Run(records)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(steps))
	for i, s := range steps {
		v := s.AC
		if m.Output == OutputDC {
			v = s.DC
		}
		out[i] = v * m.Scale
	}
	return out, nil
}
