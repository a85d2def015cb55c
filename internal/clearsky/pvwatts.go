package clearsky

import "math"

// PVWattsDC is the PVWatts DC power model:
//
//	pdc = pdc0 * g/1000 * (1 + gamma_pdc*(tcell-25))
//
// The result is not clipped at pdc0.
func PVWattsDC(g, tcell float64, m ModuleParams) float64 {
	return m.PDC0 * (g / 1000) * (1 + m.GammaPDC*(tcell-25))
}

// PVWattsAC is the PVWatts inverter model. Output is limited to the
// inverter's AC rating eta_nom*pdc0 and never negative.
func PVWattsAC(pdc float64, inv InverterParams) float64 {
	if inv.PDC0 <= 0 || pdc <= 0 {
		return 0
	}
	zeta := pdc / inv.PDC0
	eta := inv.EtaNom / inv.EtaRef * (-0.0162*zeta - 0.0059/zeta + 0.9858)
	pac := eta * pdc
	pac0 := inv.EtaNom * inv.PDC0
	return math.Max(0, math.Min(pac, pac0))
}

// SAPM open-rack glass/glass coefficients.
const (
	sapmA      = -3.47
	sapmB      = -0.0594
	sapmDeltaT = 3.0
)

// CellTemperature estimates cell temperature from POA irradiance with the
// Sandia module temperature model.
func CellTemperature(poa, tempAir, windSpeed float64) float64 {
	module := poa*math.Exp(sapmA+sapmB*windSpeed) + tempAir
	return module + poa/1000*sapmDeltaT
}
