package main

import (
	"fmt"
	"os"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/repository/postgres"
	"github.com/pratik-mahalle/changewatch/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.New(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	schema, err := migrations.GetFS(db.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No migrations for driver %s: %v\n", db.Driver, err)
		os.Exit(1)
	}

	applied, err := postgres.RunMigrations(db, schema)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	if applied == 0 {
		fmt.Println("Database is up to date")
		return
	}
	fmt.Printf("Applied %d migration(s) successfully\n", applied)
}
