package ingest

import (
	"bytes"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/pvclearsky/internal/clearsky"
	"github.com/lox/pvclearsky/internal/metrics"
	"github.com/lox/pvclearsky/internal/store"
)

// Importer loads dataset CSV files into the store.
type Importer struct {
	store *store.Store
}

func NewImporter(st *store.Store) *Importer {
	return &Importer{store: st}
}

// ImportResult summarises one directory import.
type ImportResult struct {
	Stations int
	Parsed   int // station records read from CSV
	Records  int
	Skipped  []string // files already imported with identical content
}

// ImportDir reads metadata.csv and every station file it lists from dir.
func (im *Importer) ImportDir(dir string) (*ImportResult, error) {
	run, err := im.store.StartImportRun("import", dir)
	if err != nil {
		slog.Warn("import: start run", "err", err)
	}
	var runID *int64
	if run != nil {
		runID = &run.ID
	}

	result, err := im.importDir(dir, runID)

	if run != nil {
		run.Success = err == nil
		if result != nil {
			run.RecordsParsed = sql.NullInt64{Int64: int64(result.Parsed), Valid: true}
			run.RecordsStored = sql.NullInt64{Int64: int64(result.Records), Valid: true}
		}
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := im.store.CompleteImportRun(run); cerr != nil {
			slog.Warn("import: complete run", "err", cerr)
		}
	}
	return result, err
}

func (im *Importer) importDir(dir string, runID *int64) (*ImportResult, error) {
	metaBytes, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	stations, err := ReadMetadataCSV(bytes.NewReader(metaBytes))
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, st := range stations {
		if err := im.store.UpsertStation(st); err != nil {
			return result, err
		}
		result.Stations++

		name := st.StationID + ".csv"
		payload, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return result, fmt.Errorf("read %s: %w", name, err)
		}

		seen, err := im.store.HasSourceFile(store.HashPayload(payload))
		if err != nil {
			return result, err
		}
		if seen {
			slog.Info("import: unchanged, skipping", "file", name)
			result.Skipped = append(result.Skipped, name)
			continue
		}

		records, err := ReadStationCSV(bytes.NewReader(payload))
		if err != nil {
			return result, fmt.Errorf("%s: %w", name, err)
		}
		result.Parsed += len(records)
		n, err := im.store.InsertRecords(st.StationID, records)
		if err != nil {
			return result, err
		}
		if _, err := im.store.StoreSourceFile(runID, name, payload); err != nil {
			slog.Warn("import: store source file", "file", name, "err", err)
		}

		metrics.RecordsImported.WithLabelValues("records").Add(float64(n))
		slog.Info("import: station", "station", st.StationID, "records", n)
		result.Records += n
	}
	return result, nil
}

// ImportIrradiance loads a clear-sky irradiance CSV into a named table.
// When start and step are set the samples are re-indexed from start.
// Every sample must end up with a timestamp.
func (im *Importer) ImportIrradiance(name, path string, start time.Time, step time.Duration) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open irradiance: %w", err)
	}
	defer f.Close()

	samples, err := ReadIrradianceCSV(f)
	if err != nil {
		return 0, err
	}
	if !start.IsZero() && step > 0 {
		samples = clearsky.Reindex(samples, start, step)
	}
	for i, s := range samples {
		if s.Timestamp.IsZero() {
			return 0, fmt.Errorf("%w: row %d of %s (pass a start time to re-index)", ErrNoTimestamp, i+1, path)
		}
	}

	n, err := im.store.InsertIrradiance(name, samples)
	if err != nil {
		return 0, err
	}
	metrics.RecordsImported.WithLabelValues("irradiance").Add(float64(n))
	slog.Info("import: irradiance", "name", name, "samples", n)
	return n, nil
}
