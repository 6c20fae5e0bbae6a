package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"campusattend/internal/config"
	"campusattend/internal/store"
)

const usage = `usage: dbtool <command>

commands:
  init      create the database file and apply all migrations
  migrate   apply pending migrations to an existing database
  diagnose  report database and environment health without modifying anything
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Secrets may be absent when running tooling; only the database path
	// matters here, so a config error is not fatal.
	cfg, _ := config.Load()

	var err error
	switch os.Args[1] {
	case "init", "migrate":
		err = migrate(cfg)
	case "diagnose":
		err = diagnose(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func migrate(cfg config.App) error {
	db, err := store.Open(cfg.DatabasePath, true)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(true); err != nil {
		return err
	}
	fmt.Printf("database ready at %s\n", cfg.DatabasePath)
	return nil
}

func diagnose(cfg config.App) error {
	fmt.Printf("database path: %s\n", cfg.DatabasePath)

	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		fmt.Println("database file: missing (run `dbtool init`)")
	} else {
		fmt.Println("database file: present")

		db, err := store.Open(cfg.DatabasePath, false)
		if err != nil {
			fmt.Printf("open failed: %v\n", err)
		} else {
			defer db.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			reports, err := db.Diagnose(ctx)
			if err != nil {
				fmt.Printf("inspection failed: %v\n", err)
			}
			for _, rep := range reports {
				if !rep.Present {
					fmt.Printf("table %-20s MISSING\n", rep.Name)
					continue
				}
				fmt.Printf("table %-20s %d rows\n", rep.Name, rep.Rows)
			}
		}
	}

	fmt.Println("environment:")
	for _, key := range config.RequiredVars {
		state := "set"
		if os.Getenv(key) == "" {
			state = "MISSING"
		}
		fmt.Printf("  %-22s %s\n", key, state)
	}
	return nil
}
