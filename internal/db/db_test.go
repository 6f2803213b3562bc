package db_test

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hussein-Mazeh/Vigil/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "vigil.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		db.Close(database)
	})
	if err := db.Migrate(database); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	return database
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "vigil.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		db.Close(database)
	})

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected database file to exist at %q: %v", dbPath, err)
	}
	if database.Path() != dbPath {
		t.Fatalf("Path() = %q, want %q", database.Path(), dbPath)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := db.Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLastScanEmpty(t *testing.T) {
	database := openTestDB(t)

	if _, err := db.GetLastScan(database); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestSaveScanReplacesSlots(t *testing.T) {
	database := openTestDB(t)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := db.SaveScan(database, db.ScanRow{
		TabID: 7, URL: "https://a.example/", RiskScore: 20, RiskLabel: "Low",
		Record: []byte(`{"url":"https://a.example/"}`), ScannedAt: first,
	}); err != nil {
		t.Fatalf("SaveScan returned error: %v", err)
	}
	if err := db.SaveScan(database, db.ScanRow{
		TabID: 9, URL: "https://b.example/", RiskScore: 70, RiskLabel: "High",
		Record: []byte(`{"url":"https://b.example/"}`), ScannedAt: first.Add(time.Minute),
	}); err != nil {
		t.Fatalf("SaveScan returned error: %v", err)
	}
	if err := db.SaveScan(database, db.ScanRow{
		TabID: 7, URL: "https://a.example/next", RiskScore: 40, RiskLabel: "Medium",
		Record: []byte(`{"url":"https://a.example/next"}`), ScannedAt: first.Add(2 * time.Minute),
	}); err != nil {
		t.Fatalf("SaveScan returned error: %v", err)
	}

	last, err := db.GetLastScan(database)
	if err != nil {
		t.Fatalf("GetLastScan returned error: %v", err)
	}
	if last.TabID != 7 || last.URL != "https://a.example/next" || last.RiskLabel != "Medium" {
		t.Fatalf("unexpected last scan: %+v", last)
	}
	if !last.ScannedAt.Equal(first.Add(2 * time.Minute)) {
		t.Fatalf("ScannedAt = %v", last.ScannedAt)
	}

	tab9, err := db.GetTabScan(database, 9)
	if err != nil {
		t.Fatalf("GetTabScan returned error: %v", err)
	}
	if string(tab9.Record) != `{"url":"https://b.example/"}` {
		t.Fatalf("unexpected record: %s", tab9.Record)
	}

	rows, err := db.ListTabScans(database)
	if err != nil {
		t.Fatalf("ListTabScans returned error: %v", err)
	}
	if len(rows) != 2 || rows[0].TabID != 7 || rows[1].TabID != 9 {
		t.Fatalf("unexpected tab listing: %+v", rows)
	}
}

func TestDeleteTabScan(t *testing.T) {
	database := openTestDB(t)

	if err := db.SaveScan(database, db.ScanRow{TabID: 3, URL: "https://c.example/", RiskLabel: "Low", Record: []byte(`{}`)}); err != nil {
		t.Fatalf("SaveScan returned error: %v", err)
	}
	if err := db.DeleteTabScan(database, 3); err != nil {
		t.Fatalf("DeleteTabScan returned error: %v", err)
	}
	if _, err := db.GetTabScan(database, 3); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after delete, got %v", err)
	}
	if err := db.DeleteTabScan(database, 3); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows deleting twice, got %v", err)
	}
	if _, err := db.GetLastScan(database); err != nil {
		t.Fatalf("global slot should survive tab removal: %v", err)
	}
}
