package clearsky

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

type Strategy string

const (
	StrategyDirectDC   Strategy = "direct_dc"
	StrategySolarDC    Strategy = "solar_dc"
	StrategyModelChain Strategy = "model_chain"
)

// Output selects which side of the inverter a model chain reports.
type Output string

const (
	OutputAC Output = "ac"
	OutputDC Output = "dc"
)

type ModuleParams struct {
	PDC0     float64 `yaml:"pdc0" validate:"gt=0"`
	GammaPDC float64 `yaml:"gamma_pdc" validate:"gte=-0.1,lte=0"`
}

type InverterParams struct {
	PDC0   float64 `yaml:"pdc0" validate:"gte=0"`
	EtaNom float64 `yaml:"eta_inv_nom" validate:"gt=0,lte=1"`
	EtaRef float64 `yaml:"eta_inv_ref" validate:"gt=0,lte=1"`
}

type Surface struct {
	Tilt    float64 `yaml:"tilt" validate:"gte=0,lte=90"`
	Azimuth float64 `yaml:"azimuth" validate:"gte=0,lt=360"`
	Albedo  float64 `yaml:"albedo" validate:"gte=0,lte=1"`
}

type Site struct {
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	Altitude  float64 `yaml:"altitude"`
}

// IrradianceConfig describes where a model chain gets clear-sky irradiance.
// Table sources are re-indexed onto a synthetic axis beginning at Start.
type IrradianceConfig struct {
	Source string        `yaml:"source" validate:"omitempty,oneof=table store haurwitz"`
	Path   string        `yaml:"path"`
	Name   string        `yaml:"name"`
	Start  time.Time     `yaml:"start"`
	Step   time.Duration `yaml:"step" validate:"gte=0"`
}

// Config is the full description of a reference model. It is read once and
// treated as immutable.
type Config struct {
	Strategy   Strategy         `yaml:"strategy" validate:"required,oneof=direct_dc solar_dc model_chain"`
	Module     ModuleParams     `yaml:"module"`
	Inverter   InverterParams   `yaml:"inverter"`
	Surface    Surface          `yaml:"surface"`
	Site       *Site            `yaml:"site"`
	Irradiance IrradianceConfig `yaml:"irradiance"`
	Output     Output           `yaml:"output" validate:"oneof=ac dc"`
	Scale      float64          `yaml:"scale" validate:"gt=0"`
	TempAir    float64          `yaml:"temp_air"`
	WindSpeed  float64          `yaml:"wind_speed" validate:"gte=0"`
	Floor      string           `yaml:"floor" validate:"oneof=exact_zero non_positive below_one at_most_one"`
}

// DefaultConfig is the single-module PVWatts setup used by the K_PV demo.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyDirectDC,
		Module:   ModuleParams{PDC0: 32, GammaPDC: -0.004},
		Inverter: InverterParams{EtaNom: 0.96, EtaRef: 0.9637},
		Surface:  Surface{Tilt: 33, Azimuth: 180, Albedo: 0.25},
		Irradiance: IrradianceConfig{
			Step: 15 * time.Minute,
		},
		Output:  OutputAC,
		Scale:   1,
		TempAir: 20,
		Floor:   "exact_zero",
	}
}

// LoadConfig reads a YAML model config on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read model config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidModelConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field ranges and cross-field requirements. All problems
// are reported together.
func (c Config) Validate() error {
	var result *multierror.Error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, fmt.Errorf("%s: failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	switch c.Strategy {
	case StrategySolarDC:
		if c.Site == nil {
			result = multierror.Append(result, errors.New("solar_dc requires site"))
		}
	case StrategyModelChain:
		if c.Site == nil {
			result = multierror.Append(result, errors.New("model_chain requires site"))
		}
		if c.Output == OutputAC && c.Inverter.PDC0 <= 0 {
			result = multierror.Append(result, errors.New("model_chain ac output requires inverter.pdc0"))
		}
		switch c.Irradiance.Source {
		case "":
			result = multierror.Append(result, errors.New("model_chain requires irradiance.source"))
		case "table":
			if c.Irradiance.Path == "" {
				result = multierror.Append(result, errors.New("table irradiance requires irradiance.path"))
			}
		case "store":
			if c.Irradiance.Name == "" {
				result = multierror.Append(result, errors.New("store irradiance requires irradiance.name"))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelConfig, err)
	}
	return nil
}

// New builds the configured strategy. src is only used by model chains.
func New(cfg Config, src IrradianceSource) (Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case StrategyDirectDC:
		return &DirectDC{Module: cfg.Module}, nil
	case StrategySolarDC:
		return &SolarDC{Module: cfg.Module, Site: *cfg.Site}, nil
	case StrategyModelChain:
		if src == nil {
			return nil, fmt.Errorf("%w: model_chain needs an irradiance source", ErrInvalidModelConfig)
		}
		return &ModelChain{
			Site:       *cfg.Site,
			Surface:    cfg.Surface,
			Module:     cfg.Module,
			Inverter:   cfg.Inverter,
			Irradiance: src,
			Output:     cfg.Output,
			Scale:      cfg.Scale,
			TempAir:    cfg.TempAir,
			WindSpeed:  cfg.WindSpeed,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidModelConfig, cfg.Strategy)
}
