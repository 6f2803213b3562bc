package main

import (
	"flag"
	"log"

	"github.com/Hussein-Mazeh/Vigil/internal/config"
	"github.com/Hussein-Mazeh/Vigil/internal/db"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default "+config.ConfigPath()+")")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("open scans database: %v", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		log.Fatalf("initialize scans database: %v", err)
	}
	if err := db.Vacuum(database); err != nil {
		log.Fatalf("initialize scans database: %v", err)
	}
	log.Printf("scans database ready at %s", database.Path())
}
