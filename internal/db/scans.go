package db

import (
	"database/sql"
	"fmt"
	"time"
)

// ScanRow is a persisted scan record. Record holds the JSON-encoded record as produced by
// the analyzer; the other columns are denormalised for listing.
type ScanRow struct {
	TabID     int64
	URL       string
	RiskScore int
	RiskLabel string
	Record    []byte
	ScannedAt time.Time
}

// scanTimeLayout is fixed-width so scanned_at sorts lexically.
const scanTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveScan replaces the tab's record and the global last-scan slot in one transaction.
func SaveScan(d *DB, row ScanRow) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}
	if row.ScannedAt.IsZero() {
		row.ScannedAt = time.Now().UTC()
	}
	scannedAt := row.ScannedAt.UTC().Format(scanTimeLayout)

	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin save scan: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO tab_scans (tab_id, url, risk_score, risk_label, record, scanned_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tab_id) DO UPDATE SET
			url = excluded.url,
			risk_score = excluded.risk_score,
			risk_label = excluded.risk_label,
			record = excluded.record,
			scanned_at = excluded.scanned_at`,
		row.TabID, row.URL, row.RiskScore, row.RiskLabel, string(row.Record), scannedAt,
	); err != nil {
		return fmt.Errorf("upsert tab scan: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO last_scan (id, tab_id, url, risk_score, risk_label, record, scanned_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			tab_id = excluded.tab_id,
			url = excluded.url,
			risk_score = excluded.risk_score,
			risk_label = excluded.risk_label,
			record = excluded.record,
			scanned_at = excluded.scanned_at`,
		row.TabID, row.URL, row.RiskScore, row.RiskLabel, string(row.Record), scannedAt,
	); err != nil {
		return fmt.Errorf("upsert last scan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save scan: %w", err)
	}
	return nil
}

// GetLastScan returns the most recent scan across all tabs.
// It returns sql.ErrNoRows when nothing has been scanned yet.
func GetLastScan(d *DB) (*ScanRow, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}
	row := d.sql.QueryRow(
		`SELECT tab_id, url, risk_score, risk_label, record, scanned_at FROM last_scan WHERE id = 1`,
	)
	return scanRow(row, "select last scan")
}

// GetTabScan returns the latest scan recorded for a tab.
// It returns sql.ErrNoRows when the tab has no record.
func GetTabScan(d *DB, tabID int64) (*ScanRow, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}
	row := d.sql.QueryRow(
		`SELECT tab_id, url, risk_score, risk_label, record, scanned_at FROM tab_scans WHERE tab_id = ?`,
		tabID,
	)
	return scanRow(row, "select tab scan")
}

// DeleteTabScan removes a tab's record.
// It returns sql.ErrNoRows if nothing was deleted.
func DeleteTabScan(d *DB, tabID int64) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}

	res, err := d.sql.Exec(`DELETE FROM tab_scans WHERE tab_id = ?`, tabID)
	if err != nil {
		return fmt.Errorf("delete tab scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListTabScans returns every per-tab record, newest first.
func ListTabScans(d *DB) ([]ScanRow, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}

	rows, err := d.sql.Query(
		`SELECT tab_id, url, risk_score, risk_label, record, scanned_at
		 FROM tab_scans
		 ORDER BY scanned_at DESC, tab_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select tab scans: %w", err)
	}
	defer rows.Close()

	var results []ScanRow
	for rows.Next() {
		r, err := scanRow(rows, "scan tab row")
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tab scans: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner, op string) (*ScanRow, error) {
	var (
		r         ScanRow
		record    string
		scannedAt string
	)
	if err := s.Scan(&r.TabID, &r.URL, &r.RiskScore, &r.RiskLabel, &record, &scannedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r.Record = []byte(record)

	ts, err := time.Parse(scanTimeLayout, scannedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: parse scanned_at: %w", op, err)
	}
	r.ScannedAt = ts
	return &r, nil
}
