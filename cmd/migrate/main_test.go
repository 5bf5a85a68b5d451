package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"001_documents.sql", "001_documents.down.sql", "002_index.sql", "002_index.down.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	up, err := migrationFiles(dir, "up")
	if err != nil {
		t.Fatal(err)
	}
	if len(up) != 2 || filepath.Base(up[0]) != "001_documents.sql" || filepath.Base(up[1]) != "002_index.sql" {
		t.Errorf("unexpected up order %v", up)
	}

	down, err := migrationFiles(dir, "down")
	if err != nil {
		t.Fatal(err)
	}
	if len(down) != 2 || filepath.Base(down[0]) != "002_index.down.sql" {
		t.Errorf("unexpected down order %v", down)
	}

	if _, err := migrationFiles(dir, "sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
}
