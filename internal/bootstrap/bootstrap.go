// Package bootstrap builds the adapters and core services shared by the
// daemon and the uploader worker from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/fieldpins/internal/adapters/dynamo"
	"github.com/samirrijal/fieldpins/internal/adapters/localphoto"
	natsadapter "github.com/samirrijal/fieldpins/internal/adapters/nats"
	"github.com/samirrijal/fieldpins/internal/adapters/nominatim"
	"github.com/samirrijal/fieldpins/internal/adapters/postgres"
	"github.com/samirrijal/fieldpins/internal/adapters/s3blob"
	"github.com/samirrijal/fieldpins/internal/adapters/sqlitecache"
	"github.com/samirrijal/fieldpins/internal/adapters/valkey"
	"github.com/samirrijal/fieldpins/internal/core/ports"
	"github.com/samirrijal/fieldpins/internal/core/usecases"
	"github.com/samirrijal/fieldpins/internal/pkg/config"
)

// Check reports whether one backing service is reachable.
type Check func(ctx context.Context) error

// Services is the wired core plus the handles main needs for readiness,
// metrics and shutdown.
type Services struct {
	Store     *usecases.MarkerStore
	Geocoder  *usecases.GeocodeCache
	Markers   *usecases.MarkerSyncEngine
	Uploads   *usecases.PhotoUploadPipeline
	Publisher ports.EventPublisher // nil when NATS is unavailable
	DB        *postgres.DB         // nil unless store.driver is postgres
	Checks    map[string]Check

	closers []func()
}

// Close releases every adapter in reverse construction order.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Build connects the document store, blob store, geocoder, cache and event
// publisher selected by cfg. The document and blob stores are required;
// cache and NATS failures degrade to running without them.
func Build(ctx context.Context, cfg *config.Config) (*Services, error) {
	log := slog.Default().With("component", "bootstrap")
	s := &Services{Checks: map[string]Check{}}

	docs, err := s.documentStore(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	blobCfg := s3blob.Config{
		Bucket:        cfg.Blob.Bucket,
		Region:        cfg.Blob.Region,
		Endpoint:      cfg.Blob.Endpoint,
		PublicBaseURL: cfg.Blob.PublicBaseURL,
	}
	s3Client, err := s3blob.NewClient(ctx, blobCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}
	blobs := s3blob.New(s3Client, blobCfg)

	var cache ports.AddressCache
	switch cfg.Cache.Driver {
	case "valkey":
		c, err := valkey.New(cfg.Cache.Addr)
		if err != nil {
			log.Warn("valkey unavailable, geocode cache is memory only", "error", err)
			s.Checks["cache"] = nil
			break
		}
		cache = c
		s.Checks["cache"] = c.Ping
		s.closers = append(s.closers, c.Close)
	case "sqlite":
		c, err := sqlitecache.Open(cfg.Cache.Path)
		if err != nil {
			log.Warn("sqlite cache unavailable, geocode cache is memory only", "error", err)
			s.Checks["cache"] = nil
			break
		}
		cache = c
		s.Checks["cache"] = c.Ping
		s.closers = append(s.closers, func() { _ = c.Close() })
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Warn("nats unavailable, events are not published", "error", err)
		s.Checks["nats"] = nil
	} else {
		s.Publisher = pub
		s.Checks["nats"] = func(context.Context) error { return pub.Ping() }
		s.closers = append(s.closers, pub.Close)
	}

	provider := nominatim.New(cfg.Geocode.Server, time.Duration(cfg.Geocode.MinIntervalMS)*time.Millisecond)
	s.Geocoder = usecases.NewGeocodeCache(provider, cache, usecases.GeocodeCacheConfig{
		Precision:  cfg.Geocode.Precision,
		TTLSeconds: cfg.Cache.TTLSeconds,
	})

	s.Store = usecases.NewMarkerStore()
	s.Markers = usecases.NewMarkerSyncEngine(docs, s.Geocoder, s.Store, s.Publisher, cfg.Store.Collection)
	s.Uploads = usecases.NewPhotoUploadPipeline(
		localphoto.New(cfg.Upload.PhotoRoot),
		blobs,
		docs,
		s.Store,
		s.Publisher,
		cfg.Store.Collection,
		cfg.Upload.MaxConcurrent,
	)
	return s, nil
}

func (s *Services) documentStore(ctx context.Context, cfg *config.Config) (ports.DocumentStore, error) {
	switch cfg.Store.Driver {
	case "dynamodb":
		client, err := dynamo.NewClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: %w", err)
		}
		docs := dynamo.NewMarkerDocs(client, cfg.DynamoDB.Table)
		s.Checks["store"] = docs.Ping
		return docs, nil
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN(), 0)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		s.DB = db
		s.Checks["store"] = db.Ping
		s.closers = append(s.closers, db.Close)
		return postgres.NewMarkerDocs(db), nil
	}
}
