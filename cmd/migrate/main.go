package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samirrijal/fieldpins/internal/adapters/postgres"
	"github.com/samirrijal/fieldpins/internal/pkg/config"
	"github.com/samirrijal/fieldpins/internal/pkg/logging"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("fieldpins-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.Store.Driver != "postgres" {
		log.Fatalf("migrations apply to the postgres store only (store.driver=%s)", cfg.Store.Driver)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	files, err := migrationFiles(migrationsDir, os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
		fmt.Printf("OK  %s\n", f)
	}

	log.Printf("%d migrations applied (%s)", len(files), os.Args[1])
}

// migrationFiles returns the up scripts in name order, or the down scripts
// in reverse name order.
func migrationFiles(dir, direction string) ([]string, error) {
	all, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range all {
		isDown := strings.HasSuffix(f, ".down.sql")
		switch direction {
		case "up":
			if !isDown {
				files = append(files, f)
			}
		case "down":
			if isDown {
				files = append(files, f)
			}
		default:
			return nil, fmt.Errorf("unknown command: %s", direction)
		}
	}

	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
