// Package clearsky produces modeled clear-sky reference power curves for a
// window of station records.
//
// Three strategies are available: DirectDC derates measured plane-of-array
// irradiance with the PVWatts DC model, SolarDC feeds the same model with a
// direct-beam estimate from solar altitude, and ModelChain runs solar
// position, clear-sky irradiance, transposition, cell temperature, DC and
// inverter models in sequence.
package clearsky

import (
	"errors"

	"github.com/lox/pvclearsky/internal/models"
)

var (
	ErrInvalidModelConfig  = errors.New("invalid clear-sky model config")
	ErrMissingClearSkyData = errors.New("clear-sky irradiance not available")
)

// Model produces one reference power value per record, in record order.
type Model interface {
	Name() string
	Reference(records []models.StationRecord) ([]float64, error)
}
