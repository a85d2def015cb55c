package ingest

import (
	"fmt"
	"math"

	"github.com/lox/pvclearsky/internal/models"
)

const (
	FlagTotalPhysical           = "total_irradiance_physical"
	FlagDiffusePhysical         = "diffuse_irradiance_physical"
	FlagTotalExtraterrestrial   = "total_irradiance_extraterrestrial"
	FlagDiffuseExtraterrestrial = "diffuse_irradiance_extraterrestrial"
	FlagClosure                 = "total_irradiance_closure"
)

// QCBounds parameterises the irradiance quality checks.
type QCBounds struct {
	ZenithDeg float64 // fixed solar zenith angle in degrees
	E0n       float64 // extraterrestrial normal irradiance, W/m²
}

// DefaultQC matches the PVOD quality-control constants.
var DefaultQC = QCBounds{ZenithDeg: 33, E0n: 1361}

func (b QCBounds) cosFactor() float64 {
	return math.Pow(math.Cos(b.ZenithDeg*math.Pi/180), 1.2)
}

// ValidateRecord returns the quality flags a record fails, in check order.
func ValidateRecord(r models.StationRecord, b QCBounds) []string {
	var flags []string
	c := b.cosFactor()
	total, diffuse := r.TotalIrradiance, r.DiffuseIrradiance

	if total < -4 || total > 1.5*diffuse*c+100 {
		flags = append(flags, FlagTotalPhysical)
	}
	if diffuse < -4 || diffuse > 0.95*diffuse*c+50 {
		flags = append(flags, FlagDiffusePhysical)
	}

	if !(total > -4 && total < 1.5*b.E0n*c+100) {
		flags = append(flags, FlagTotalExtraterrestrial)
	}
	if !(diffuse > -4 && diffuse < 0.95*b.E0n*c+50) {
		flags = append(flags, FlagDiffuseExtraterrestrial)
	}

	if !(total > 50) {
		flags = append(flags, FlagClosure)
	}

	return flags
}

// PassesQC reports whether a record survives every bound.
func PassesQC(r models.StationRecord, b QCBounds) bool {
	return len(ValidateRecord(r, b)) == 0
}

// FilterQC drops records failing any bound. The input is not modified.
func FilterQC(records []models.StationRecord, b QCBounds) []models.StationRecord {
	kept := make([]models.StationRecord, 0, len(records))
	for _, r := range records {
		if PassesQC(r, b) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Component selects an irradiance component for the single-value limit tests.
type Component string

const (
	GHI Component = "GHI"
	DHI Component = "DHI"
	BNI Component = "BNI"
)

// PhysicalLimit reports whether x lies inside the physically possible range
// for the component. zenithDeg is in degrees.
func PhysicalLimit(c Component, x, e0n, zenithDeg float64) (bool, error) {
	cz := math.Pow(math.Cos(zenithDeg*math.Pi/180), 1.2)
	switch c {
	case GHI:
		return -4 < x && x < 1.5*e0n*cz+100, nil
	case DHI:
		return -4 < x && x < 0.95*e0n*cz+50, nil
	case BNI:
		return -4 < x && x < e0n, nil
	}
	return false, fmt.Errorf("unknown irradiance component %q", c)
}

// ExtremeLimit is the tighter "extremely rare" range for the component.
func ExtremeLimit(c Component, x, e0n, zenithDeg float64) (bool, error) {
	cz := math.Pow(math.Cos(zenithDeg*math.Pi/180), 1.2)
	switch c {
	case GHI:
		return -2 < x && x < 1.5*e0n*cz+50, nil
	case DHI:
		return -2 < x && x < 0.95*e0n*cz+30, nil
	case BNI:
		return -2 < x && x < 0.95*e0n*cz+10, nil
	}
	return false, fmt.Errorf("unknown irradiance component %q", c)
}
