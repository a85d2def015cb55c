package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// HashPayload returns the hex SHA-256 used to deduplicate source files.
func HashPayload(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// StoreSourceFile keeps a gzip copy of an imported CSV file. It returns 0
// if an identical file was already stored.
func (s *Store) StoreSourceFile(runID *int64, name string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	var importRunID sql.NullInt64
	if runID != nil {
		importRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO source_files (import_run_id, imported_at, name, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, importRunID, time.Now().UTC(), name, buf.Bytes(), HashPayload(payload))
	if err != nil {
		return 0, fmt.Errorf("insert source file: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// HasSourceFile reports whether a file with this content hash was imported.
func (s *Store) HasSourceFile(hash string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM source_files WHERE payload_hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSourceFile returns the decompressed contents of the latest file stored
// under name.
func (s *Store) GetSourceFile(name string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`
		SELECT payload_compressed FROM source_files WHERE name = ? ORDER BY id DESC LIMIT 1
	`, name).Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
