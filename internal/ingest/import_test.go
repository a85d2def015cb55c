package ingest

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/pvclearsky/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, time.UTC)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestImportDir(t *testing.T) {
	st := setupStore(t)
	dir := t.TempDir()
	writeFile(t, dir, MetadataFile, "Station_ID,Capacity\nstation00,20000\nstation01,30000\n")
	writeFile(t, dir, "station00.csv", stationCSV)
	writeFile(t, dir, "station01.csv", "date_time,lmd_totalirrad,lmd_diffuseirrad,lmd_temperature,power\n2018-08-16 04:00:00,900,100,30,15\n")

	im := NewImporter(st)
	res, err := im.ImportDir(dir)
	if err != nil {
		t.Fatalf("ImportDir: %v", err)
	}
	if res.Stations != 2 || res.Records != 4 || res.Parsed != 4 {
		t.Errorf("result = %+v, want 2 stations / 4 records", res)
	}

	counts, err := st.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if counts["station00"] != 3 || counts["station01"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	// Unchanged files are skipped on a second import.
	res, err = im.ImportDir(dir)
	if err != nil {
		t.Fatalf("second ImportDir: %v", err)
	}
	if res.Records != 0 || len(res.Skipped) != 2 {
		t.Errorf("second result = %+v", res)
	}

	runs, err := st.GetRecentImportRuns(10)
	if err != nil {
		t.Fatalf("GetRecentImportRuns: %v", err)
	}
	if len(runs) != 2 || !runs[0].Success {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[1].RecordsParsed.Int64 != 4 || runs[1].RecordsStored.Int64 != 4 {
		t.Errorf("first run parsed/stored = %d/%d, want 4/4", runs[1].RecordsParsed.Int64, runs[1].RecordsStored.Int64)
	}
}

func TestImportDir_MissingStationFile(t *testing.T) {
	st := setupStore(t)
	dir := t.TempDir()
	writeFile(t, dir, MetadataFile, "Station_ID,Capacity\nstation00,20000\n")

	if _, err := NewImporter(st).ImportDir(dir); err == nil {
		t.Fatal("expected error")
	}

	runs, _ := st.GetRecentImportRuns(1)
	if len(runs) != 1 || runs[0].Success || !runs[0].ErrorMessage.Valid {
		t.Errorf("run = %+v, want failed run with message", runs)
	}
}

func TestImportIrradiance(t *testing.T) {
	st := setupStore(t)
	path := writeFile(t, t.TempDir(), "clearsky.csv", "ghi,dni,dhi\n0,0,0\n100,200,30\n")

	start := time.Date(2018, 8, 15, 16, 0, 0, 0, time.UTC)
	n, err := NewImporter(st).ImportIrradiance("hebei", path, start, 15*time.Minute)
	if err != nil {
		t.Fatalf("ImportIrradiance: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}

	samples, err := st.GetIrradiance("hebei")
	if err != nil {
		t.Fatalf("GetIrradiance: %v", err)
	}
	if !samples[1].Timestamp.Equal(start.Add(15 * time.Minute)) {
		t.Errorf("Timestamp = %v", samples[1].Timestamp)
	}
	if samples[1].DNI != 200 {
		t.Errorf("DNI = %v", samples[1].DNI)
	}
}

func TestImportIrradiance_NoTimestamps(t *testing.T) {
	st := setupStore(t)
	path := writeFile(t, t.TempDir(), "clearsky.csv", "ghi,dni,dhi
0,0,0
100,200,30
")

	_, err := NewImporter(st).ImportIrradiance("hebei", path, time.Time{}, 0)
	if !errors.Is(err, ErrNoTimestamp) {
		t.Fatalf("err = %v, want ErrNoTimestamp", err)
	}

	samples, err := st.GetIrradiance("hebei")
	if err != nil {
		t.Fatalf("GetIrradiance: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("stored %d samples, want none", len(samples))
	}
}
