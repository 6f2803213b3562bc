package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/internal/db"
)

func main() {
	dir := flag.String("dir", "", "data directory containing vigil.db")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: --dir")
		os.Exit(1)
	}

	database, err := db.Open(filepath.Join(*dir, "vigil.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close(database)

	rows, err := db.ListTabScans(database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list tab scans: %v\n", err)
		os.Exit(1)
	}

	for _, row := range rows {
		fmt.Printf("tab %d | %s | %s (%d) | %s\n", row.TabID, row.URL, row.RiskLabel, row.RiskScore, row.ScannedAt.Format("2006-01-02 15:04:05"))

		var rec analyzer.ScanRecord
		if err := json.Unmarshal(row.Record, &rec); err != nil {
			fmt.Printf("  record unreadable: %v\n", err)
			continue
		}
		for _, n := range rec.Notes {
			fmt.Printf("  - %s\n", n)
		}
	}

	if len(rows) == 0 {
		fmt.Println("no scans stored")
	}
}
