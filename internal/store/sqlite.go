package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lox/pvclearsky/internal/models"
)

// Store persists station metadata, telemetry and clear-sky irradiance in
// SQLite. Timestamps are written in UTC and returned in loc.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}
}

// Pragmas are applied to file-backed databases before migrating.
var Pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// ApplyPragmas runs every pragma and returns the joined failures.
func ApplyPragmas(db *sql.DB) error {
	var errs []error
	for _, p := range Pragmas {
		if _, err := db.Exec(p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// UpsertStation replaces a station's metadata row and attributes.
func (s *Store) UpsertStation(meta models.StationMetadata) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO stations (station_id, idx) VALUES (?, ?)
		ON CONFLICT(station_id) DO UPDATE SET idx = excluded.idx
	`, meta.StationID, meta.Index); err != nil {
		return fmt.Errorf("upsert station %s: %w", meta.StationID, err)
	}

	if _, err := tx.Exec(`DELETE FROM station_attributes WHERE station_id = ?`, meta.StationID); err != nil {
		return fmt.Errorf("clear attributes for %s: %w", meta.StationID, err)
	}

	for name, v := range meta.Numeric {
		if _, err := tx.Exec(`
			INSERT INTO station_attributes (station_id, name, num_value) VALUES (?, ?, ?)
		`, meta.StationID, name, nullable(v)); err != nil {
			return fmt.Errorf("insert attribute %s.%s: %w", meta.StationID, name, err)
		}
	}
	for name, v := range meta.Attributes {
		if _, err := tx.Exec(`
			INSERT INTO station_attributes (station_id, name, text_value) VALUES (?, ?, ?)
		`, meta.StationID, name, v); err != nil {
			return fmt.Errorf("insert attribute %s.%s: %w", meta.StationID, name, err)
		}
	}

	return tx.Commit()
}

// GetStations returns every station ordered by index.
func (s *Store) GetStations() ([]models.StationMetadata, error) {
	rows, err := s.db.Query(`SELECT station_id, idx FROM stations ORDER BY idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.StationMetadata
	byID := make(map[string]int)
	for rows.Next() {
		m := models.StationMetadata{
			Numeric:    make(map[string]float64),
			Attributes: make(map[string]string),
		}
		if err := rows.Scan(&m.StationID, &m.Index); err != nil {
			return nil, err
		}
		byID[m.StationID] = len(stations)
		stations = append(stations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attrs, err := s.db.Query(`SELECT station_id, name, num_value, text_value FROM station_attributes`)
	if err != nil {
		return nil, err
	}
	defer attrs.Close()

	for attrs.Next() {
		var (
			id, name string
			num      sql.NullFloat64
			text     sql.NullString
		)
		if err := attrs.Scan(&id, &name, &num, &text); err != nil {
			return nil, err
		}
		i, ok := byID[id]
		if !ok {
			continue
		}
		switch {
		case text.Valid:
			stations[i].Attributes[name] = text.String
		case num.Valid:
			stations[i].Numeric[name] = num.Float64
		default:
			stations[i].Numeric[name] = math.NaN()
		}
	}
	return stations, attrs.Err()
}

// GetStation looks up a station by index. It returns nil when no station
// has that index.
func (s *Store) GetStation(index int) (*models.StationMetadata, error) {
	stations, err := s.GetStations()
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(stations), func(i int) bool { return stations[i].Index >= index })
	if i == len(stations) || stations[i].Index != index {
		return nil, nil
	}
	return &stations[i], nil
}

const recordColumns = `observed_at, power, lmd_totalirrad, lmd_diffuseirrad, lmd_temperature,
	lmd_pressure, lmd_winddirection, lmd_windspeed, nwp_globalirrad, nwp_directirrad,
	nwp_temperature, nwp_humidity, nwp_windspeed, nwp_winddirection, nwp_pressure`

// InsertRecords stores telemetry for a station, replacing rows with the same
// timestamp. It returns the number of rows written.
func (s *Store) InsertRecords(stationID string, records []models.StationRecord) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO records (station_id, ` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(stationID, r.Timestamp.UTC(),
			nullable(r.Power), nullable(r.TotalIrradiance), nullable(r.DiffuseIrradiance), nullable(r.Temperature),
			nullable(r.LMDPressure), nullable(r.LMDWindDirection), nullable(r.LMDWindSpeed),
			nullable(r.NWPGlobalIrradiance), nullable(r.NWPDirectIrradiance), nullable(r.NWPTemperature),
			nullable(r.NWPHumidity), nullable(r.NWPWindSpeed), nullable(r.NWPWindDirection), nullable(r.NWPPressure),
		); err != nil {
			return 0, fmt.Errorf("insert record %s at %s: %w", stationID, r.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// GetRecords returns all telemetry for a station in timestamp order.
func (s *Store) GetRecords(stationID string) ([]models.StationRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+recordColumns+`
		FROM records
		WHERE station_id = ?
		ORDER BY observed_at ASC
	`, stationID)
	if err != nil {
		return nil, err
	}
	return s.scanRecords(rows)
}

// GetRecordsRange returns telemetry with start <= timestamp <= end.
func (s *Store) GetRecordsRange(stationID string, start, end time.Time) ([]models.StationRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+recordColumns+`
		FROM records
		WHERE station_id = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`, stationID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return s.scanRecords(rows)
}

func (s *Store) scanRecords(rows *sql.Rows) ([]models.StationRecord, error) {
	defer rows.Close()

	var records []models.StationRecord
	for rows.Next() {
		var (
			ts   time.Time
			cols [14]sql.NullFloat64
		)
		dest := []any{&ts}
		for i := range cols {
			dest = append(dest, &cols[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		v := func(i int) float64 {
			if !cols[i].Valid {
				return math.NaN()
			}
			return cols[i].Float64
		}
		records = append(records, models.StationRecord{
			Timestamp:           ts.In(s.loc),
			Power:               v(0),
			TotalIrradiance:     v(1),
			DiffuseIrradiance:   v(2),
			Temperature:         v(3),
			LMDPressure:         v(4),
			LMDWindDirection:    v(5),
			LMDWindSpeed:        v(6),
			NWPGlobalIrradiance: v(7),
			NWPDirectIrradiance: v(8),
			NWPTemperature:      v(9),
			NWPHumidity:         v(10),
			NWPWindSpeed:        v(11),
			NWPWindDirection:    v(12),
			NWPPressure:         v(13),
		})
	}
	return records, rows.Err()
}

// CountRecords returns the number of stored records per station.
func (s *Store) CountRecords() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT station_id, COUNT(*) FROM records GROUP BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// InsertIrradiance stores a named clear-sky irradiance table, replacing
// samples with the same timestamp.
func (s *Store) InsertIrradiance(name string, samples []models.Irradiance) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO clearsky_irradiance (name, observed_at, ghi, dni, dhi)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err := stmt.Exec(name, smp.Timestamp.UTC(), smp.GHI, smp.DNI, smp.DHI); err != nil {
			return 0, fmt.Errorf("insert irradiance %s at %s: %w", name, smp.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(samples), nil
}

// GetIrradiance returns a named irradiance table in timestamp order.
func (s *Store) GetIrradiance(name string) ([]models.Irradiance, error) {
	rows, err := s.db.Query(`
		SELECT observed_at, ghi, dni, dhi
		FROM clearsky_irradiance
		WHERE name = ?
		ORDER BY observed_at ASC
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.Irradiance
	for rows.Next() {
		var smp models.Irradiance
		if err := rows.Scan(&smp.Timestamp, &smp.GHI, &smp.DNI, &smp.DHI); err != nil {
			return nil, err
		}
		smp.Timestamp = smp.Timestamp.UTC()
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
