package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	DynamoDB  DynamoDBConfig  `mapstructure:"dynamodb"`
	Blob      BlobConfig      `mapstructure:"blob"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Location  LocationConfig  `mapstructure:"location"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the remote document store backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // postgres | dynamodb
	Collection string `mapstructure:"collection"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type DynamoDBConfig struct {
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type BlobConfig struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig selects the persistent tier behind the in-memory geocode cache.
type CacheConfig struct {
	Driver     string `mapstructure:"driver"` // valkey | sqlite | none
	Addr       string `mapstructure:"addr"`
	Path       string `mapstructure:"path"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type GeocodeConfig struct {
	Server        string `mapstructure:"server"`
	Precision     int    `mapstructure:"precision"`
	MinIntervalMS int    `mapstructure:"min_interval_ms"`
}

type LocationConfig struct {
	Provider               string  `mapstructure:"provider"` // geoclue | static
	DesktopID              string  `mapstructure:"desktop_id"`
	DistanceInterval       float64 `mapstructure:"distance_interval"`
	MaxAccuracy            float64 `mapstructure:"max_accuracy"`
	FirstFixTimeoutSeconds int     `mapstructure:"first_fix_timeout_seconds"`
	StaticLat              float64 `mapstructure:"static_lat"`
	StaticLon              float64 `mapstructure:"static_lon"`
}

type UploadConfig struct {
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	PhotoRoot     string `mapstructure:"photo_root"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FIELDPINS_DATABASE_HOST → database.host
	v.SetEnvPrefix("FIELDPINS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 43098)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.collection", "markers")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fieldpins")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fieldpins")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("dynamodb.table", "fieldpins-markers")
	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("blob.bucket", "fieldpins-images")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("cache.driver", "valkey")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.path", "geocode.sqlite")
	v.SetDefault("cache.ttl_seconds", 0)
	v.SetDefault("geocode.server", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.precision", 4)
	v.SetDefault("geocode.min_interval_ms", 1000)
	v.SetDefault("location.provider", "geoclue")
	v.SetDefault("location.desktop_id", "fieldpins")
	v.SetDefault("location.distance_interval", 1.0)
	v.SetDefault("location.max_accuracy", 0.0)
	v.SetDefault("location.first_fix_timeout_seconds", 15)
	v.SetDefault("upload.max_concurrent", 4)
	v.SetDefault("upload.photo_root", "")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.task_queue", "photo-attach-queue")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Store.Collection == "" {
		errs = append(errs, "store.collection is required")
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "dynamodb":
		if c.DynamoDB.Table == "" {
			errs = append(errs, "dynamodb.table is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or dynamodb, got %q", c.Store.Driver))
	}

	if c.Blob.Bucket == "" {
		errs = append(errs, "blob.bucket is required")
	}

	switch c.Cache.Driver {
	case "valkey":
		if c.Cache.Addr == "" {
			errs = append(errs, "cache.addr is required for the valkey driver")
		}
	case "sqlite":
		if c.Cache.Path == "" {
			errs = append(errs, "cache.path is required for the sqlite driver")
		}
	case "none", "":
	default:
		errs = append(errs, fmt.Sprintf("cache.driver must be valkey, sqlite or none, got %q", c.Cache.Driver))
	}
	if c.Cache.TTLSeconds < 0 {
		errs = append(errs, "cache.ttl_seconds must not be negative")
	}

	if c.Geocode.Precision < 0 || c.Geocode.Precision > 8 {
		errs = append(errs, fmt.Sprintf("geocode.precision must be 0-8, got %d", c.Geocode.Precision))
	}

	switch c.Location.Provider {
	case "geoclue", "static":
	default:
		errs = append(errs, fmt.Sprintf("location.provider must be geoclue or static, got %q", c.Location.Provider))
	}
	if c.Location.DistanceInterval < 0 {
		errs = append(errs, "location.distance_interval must not be negative")
	}
	if c.Location.FirstFixTimeoutSeconds <= 0 {
		errs = append(errs, "location.first_fix_timeout_seconds must be positive")
	}

	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "upload.max_concurrent must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
