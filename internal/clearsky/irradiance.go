package clearsky

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lox/pvclearsky/internal/models"
)

// IrradianceSource supplies clear-sky GHI/DNI/DHI for an instant.
type IrradianceSource interface {
	Irradiance(t time.Time, pos SolarPosition) (models.Irradiance, error)
}

// IrradianceTable is a time-indexed clear-sky irradiance series, typically
// loaded from an external clear-sky dataset.
type IrradianceTable struct {
	samples []models.Irradiance
}

// NewIrradianceTable sorts a copy of samples by timestamp.
func NewIrradianceTable(samples []models.Irradiance) *IrradianceTable {
	s := make([]models.Irradiance, len(samples))
	copy(s, samples)
	sort.Slice(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
	return &IrradianceTable{samples: s}
}

// Reindex places samples on a synthetic UTC axis starting at start with a
// fixed step, discarding their original timestamps.
func Reindex(samples []models.Irradiance, start time.Time, step time.Duration) []models.Irradiance {
	out := make([]models.Irradiance, len(samples))
	start = start.UTC()
	for i, s := range samples {
		s.Timestamp = start.Add(time.Duration(i) * step)
		out[i] = s
	}
	return out
}

func (t *IrradianceTable) Len() int {
	return len(t.samples)
}

// Span returns the first and last covered instants.
func (t *IrradianceTable) Span() (time.Time, time.Time, bool) {
	if len(t.samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return t.samples[0].Timestamp, t.samples[len(t.samples)-1].Timestamp, true
}

// Irradiance returns the sample at exactly t.
func (t *IrradianceTable) Irradiance(at time.Time, _ SolarPosition) (models.Irradiance, error) {
	i := sort.Search(len(t.samples), func(i int) bool { return !t.samples[i].Timestamp.Before(at) })
	if i == len(t.samples) || !t.samples[i].Timestamp.Equal(at) {
		return models.Irradiance{}, fmt.Errorf("%w at %s", ErrMissingClearSkyData, at.UTC().Format(time.RFC3339))
	}
	return t.samples[i], nil
}

// Covers reports whether every instant in times has a sample.
func (t *IrradianceTable) Covers(times []time.Time) error {
	for _, at := range times {
		if _, err := t.Irradiance(at, SolarPosition{}); err != nil {
			return err
		}
	}
	return nil
}

// Haurwitz models clear-sky GHI from the solar zenith alone and splits it
// into direct and diffuse parts with the Erbs correlation.
type Haurwitz struct{}

func (Haurwitz) Irradiance(t time.Time, pos SolarPosition) (models.Irradiance, error) {
	out := models.Irradiance{Timestamp: t}
	cosZ := math.Cos(pos.Zenith * degToRad)
	if cosZ <= 0 {
		return out, nil
	}
	out.GHI = 1098 * cosZ * math.Exp(-0.059/cosZ)
	out.DNI, out.DHI = Erbs(out.GHI, pos.Zenith, ExtraterrestrialDNI(t))
	return out, nil
}

// minCosZenith keeps the clearness index finite near the horizon.
const minCosZenith = 0.065

// Erbs decomposes GHI into DNI and DHI.
func Erbs(ghi, zenith, dniExtra float64) (dni, dhi float64) {
	cosZ := math.Cos(zenith * degToRad)
	if ghi <= 0 {
		return 0, 0
	}
	kt := ghi / (dniExtra * math.Max(cosZ, minCosZenith))
	kt = clamp(kt, 0, 1)

	var df float64
	switch {
	case kt <= 0.22:
		df = 1 - 0.09*kt
	case kt <= 0.8:
		df = 0.9511 - 0.1604*kt + 4.388*kt*kt - 16.638*kt*kt*kt + 12.336*kt*kt*kt*kt
	default:
		df = 0.165
	}

	dhi = df * ghi
	if cosZ < minCosZenith {
		return 0, ghi
	}
	dni = (ghi - dhi) / cosZ
	return dni, dhi
}

// DirectBeam estimates clear-sky direct radiation from solar altitude using
// a seasonal apparent flux and optical depth.
func DirectBeam(t time.Time, altitude float64) float64 {
	if altitude <= 0 {
		return 0
	}
	day := float64(t.UTC().YearDay())
	flux := 1160 + 75*math.Sin(2*math.Pi/365*(day-275))
	depth := 0.174 + 0.035*math.Sin(2*math.Pi/365*(day-100))
	airMass := 1 / math.Sin(altitude*degToRad)
	return flux * math.Exp(-depth*airMass)
}

// POA transposes irradiance onto a tilted surface with an isotropic sky.
func POA(irr models.Irradiance, pos SolarPosition, tilt, surfaceAzimuth, albedo float64) float64 {
	cosAOI := AngleOfIncidence(pos, tilt, surfaceAzimuth)
	beam := math.Max(irr.DNI*cosAOI, 0)
	if !pos.Daylight() {
		beam = 0
	}
	cosTilt := math.Cos(tilt * degToRad)
	sky := irr.DHI * (1 + cosTilt) / 2
	ground := irr.GHI * albedo * (1 - cosTilt) / 2
	return beam + sky + ground
}
