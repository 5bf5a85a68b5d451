package config_test

import (
	"strings"
	"testing"

	"github.com/samirrijal/fieldpins/internal/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("fieldpins-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Collection != "markers" {
		t.Errorf("expected collection markers, got %q", cfg.Store.Collection)
	}
	if cfg.Location.DistanceInterval != 1 {
		t.Errorf("expected distance interval 1, got %v", cfg.Location.DistanceInterval)
	}
	if cfg.Geocode.Precision != 4 {
		t.Errorf("expected geocode precision 4, got %d", cfg.Geocode.Precision)
	}
	if cfg.Telemetry.ServiceName != "fieldpins-test" {
		t.Errorf("expected service name fieldpins-test, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FIELDPINS_STORE_DRIVER", "dynamodb")
	t.Setenv("FIELDPINS_UPLOAD_MAX_CONCURRENT", "9")

	cfg, err := config.Load("fieldpins-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Driver != "dynamodb" {
		t.Errorf("expected dynamodb driver, got %q", cfg.Store.Driver)
	}
	if cfg.Upload.MaxConcurrent != 9 {
		t.Errorf("expected max_concurrent 9, got %d", cfg.Upload.MaxConcurrent)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{Port: 0, ReadTimeout: 1, WriteTimeout: 1},
		Store:    config.StoreConfig{Driver: "mongo", Collection: "markers"},
		Blob:     config.BlobConfig{Bucket: "b"},
		Cache:    config.CacheConfig{Driver: "none"},
		Location: config.LocationConfig{Provider: "static", FirstFixTimeoutSeconds: 1},
		Upload:   config.UploadConfig{MaxConcurrent: 1},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"server.port", "store.driver"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error, got: %s", want, msg)
		}
	}
}
