package service

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/internal/db"
)

// RecordStore persists scan records: one slot per tab plus the global last-scan slot.
// Reads return ErrNoRecord when the slot is empty.
type RecordStore interface {
	SaveScan(tabID int64, rec *analyzer.ScanRecord) error
	LastScan() (*analyzer.ScanRecord, error)
	TabScan(tabID int64) (*analyzer.ScanRecord, error)
	DeleteTabScan(tabID int64) error
}

// SQLiteStore is the RecordStore backed by the scans database.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore wraps an open database handle.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(d); err != nil {
		_ = db.Close(d)
		return nil, err
	}
	return &SQLiteStore{db: d}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return db.Close(s.db)
}

// DB exposes the underlying handle for maintenance commands.
func (s *SQLiteStore) DB() *db.DB {
	return s.db
}

// SaveScan implements RecordStore.
func (s *SQLiteStore) SaveScan(tabID int64, rec *analyzer.ScanRecord) error {
	if rec == nil {
		return errors.New("scan record is nil")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode scan record: %w", err)
	}
	return db.SaveScan(s.db, db.ScanRow{
		TabID:     tabID,
		URL:       rec.URL,
		RiskScore: rec.RiskScore,
		RiskLabel: string(rec.RiskLabel),
		Record:    payload,
		ScannedAt: rec.ScannedAt,
	})
}

// LastScan implements RecordStore.
func (s *SQLiteStore) LastScan() (*analyzer.ScanRecord, error) {
	row, err := db.GetLastScan(s.db)
	return decodeRow(row, err)
}

// TabScan implements RecordStore.
func (s *SQLiteStore) TabScan(tabID int64) (*analyzer.ScanRecord, error) {
	row, err := db.GetTabScan(s.db, tabID)
	return decodeRow(row, err)
}

// DeleteTabScan implements RecordStore.
func (s *SQLiteStore) DeleteTabScan(tabID int64) error {
	if err := db.DeleteTabScan(s.db, tabID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRecord
		}
		return err
	}
	return nil
}

func decodeRow(row *db.ScanRow, err error) (*analyzer.ScanRecord, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRecord
		}
		return nil, err
	}
	var rec analyzer.ScanRecord
	if err := json.Unmarshal(row.Record, &rec); err != nil {
		return nil, fmt.Errorf("decode scan record: %w", err)
	}
	return &rec, nil
}
