package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lox/pvclearsky/internal/clearsky"
	"github.com/lox/pvclearsky/internal/ingest"
	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/store"
)

// Source provides raw dataset contents. Record timestamps are UTC.
type Source interface {
	Files() ([]string, error)
	Metadata() ([]models.StationMetadata, error)
	Records(stationID string) ([]models.StationRecord, error)
}

// DirSource reads the CSV files of an unpacked dataset directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Files() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s DirSource) Metadata() ([]models.StationMetadata, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, ingest.MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return ingest.ReadMetadataCSV(bytes.NewReader(b))
}

func (s DirSource) Records(stationID string) ([]models.StationRecord, error) {
	f, err := os.Open(filepath.Join(s.Dir, stationID+".csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingest.ReadStationCSV(f)
}

// StoreSource reads a dataset previously imported into SQLite.
type StoreSource struct {
	Store *store.Store
}

func (s StoreSource) Files() ([]string, error) {
	stations, err := s.Store.GetStations()
	if err != nil {
		return nil, err
	}
	names := []string{ingest.MetadataFile}
	for _, st := range stations {
		names = append(names, st.StationID+".csv")
	}
	sort.Strings(names)
	return names, nil
}

func (s StoreSource) Metadata() ([]models.StationMetadata, error) {
	return s.Store.GetStations()
}

func (s StoreSource) Records(stationID string) ([]models.StationRecord, error) {
	records, err := s.Store.GetRecords(stationID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
	return records, nil
}

var ErrNoIrradianceStore = errors.New("store irradiance source needs a database")

// IrradianceSource builds the clear-sky irradiance source a model chain
// config asks for. It returns nil when the config names none.
func IrradianceSource(cfg clearsky.IrradianceConfig, st *store.Store) (clearsky.IrradianceSource, error) {
	switch cfg.Source {
	case "":
		return nil, nil
	case "haurwitz":
		return clearsky.Haurwitz{}, nil
	case "table":
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open irradiance table: %w", err)
		}
		defer f.Close()
		samples, err := ingest.ReadIrradianceCSV(f)
		if err != nil {
			return nil, err
		}
		return tableSource(samples, cfg.Start, cfg.Step)
	case "store":
		if st == nil {
			return nil, ErrNoIrradianceStore
		}
		samples, err := st.GetIrradiance(cfg.Name)
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			return nil, fmt.Errorf("%w: no irradiance table %q", clearsky.ErrMissingClearSkyData, cfg.Name)
		}
		return tableSource(samples, cfg.Start, cfg.Step)
	}
	return nil, fmt.Errorf("%w: irradiance source %q", clearsky.ErrInvalidModelConfig, cfg.Source)
}

func tableSource(samples []models.Irradiance, start time.Time, step time.Duration) (*clearsky.IrradianceTable, error) {
	if !start.IsZero() && step > 0 {
		samples = clearsky.Reindex(samples, start, step)
	}
	for _, s := range samples {
		if s.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: irradiance table has no timestamps and no irradiance.start", clearsky.ErrInvalidModelConfig)
		}
	}
	return clearsky.NewIrradianceTable(samples), nil
}
