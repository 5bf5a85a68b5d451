package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
	"github.com/samirrijal/fieldpins/internal/pkg/metrics"
	"github.com/samirrijal/fieldpins/internal/pkg/telemetry"
)

// DefaultMaxConcurrentUploads caps simultaneous blob transfers.
const DefaultMaxConcurrentUploads = 4

type uploadKey struct {
	markerID string
	photoRef string
}

type uploadEntry struct {
	task domain.UploadTask
	done chan struct{}
}

// PhotoUploadPipeline uploads local photos and attaches their URLs to
// markers. There is at most one live task per (marker, photo) pair and
// no automatic retry.
type PhotoUploadPipeline struct {
	source     ports.PhotoSource
	blobs      ports.BlobStore
	docs       ports.DocumentStore
	store      *MarkerStore
	publisher  ports.EventPublisher
	collection string
	sem        chan struct{}
	now        func() time.Time
	log        *slog.Logger

	mu       sync.Mutex
	tasks    map[uploadKey]*uploadEntry
	attempts map[uploadKey]int
	byMarker map[string][]uploadKey
	attach   map[string]*sync.Mutex
	lastKey  int64
}

// NewPhotoUploadPipeline creates a pipeline. publisher may be nil.
func NewPhotoUploadPipeline(
	source ports.PhotoSource,
	blobs ports.BlobStore,
	docs ports.DocumentStore,
	store *MarkerStore,
	publisher ports.EventPublisher,
	collection string,
	maxConcurrent int,
) *PhotoUploadPipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &PhotoUploadPipeline{
		source:     source,
		blobs:      blobs,
		docs:       docs,
		store:      store,
		publisher:  publisher,
		collection: collection,
		sem:        make(chan struct{}, maxConcurrent),
		now:        time.Now,
		log:        slog.Default().With("component", "photo_upload"),
		tasks:      make(map[uploadKey]*uploadEntry),
		attempts:   make(map[uploadKey]int),
		byMarker:   make(map[string][]uploadKey),
		attach:     make(map[string]*sync.Mutex),
	}
}

// Enqueue starts an upload of photoRef to markerID. If a task for the same
// pair is still queued or uploading, that task is returned with false and
// no new work is started. The upload outlives ctx cancellation.
func (p *PhotoUploadPipeline) Enqueue(ctx context.Context, markerID, photoRef string) (domain.UploadTask, bool) {
	k := uploadKey{markerID: markerID, photoRef: photoRef}

	p.mu.Lock()
	if e, ok := p.tasks[k]; ok && e.task.Live() {
		t := e.task
		p.mu.Unlock()
		metrics.PhotoUploadsCoalesced.Inc()
		p.log.Debug("upload coalesced", "marker_id", markerID, "photo_ref", photoRef, "attempt", t.Attempt)
		return t, false
	}

	p.attempts[k]++
	e := &uploadEntry{
		task: domain.UploadTask{
			MarkerID:  markerID,
			PhotoRef:  photoRef,
			Status:    domain.UploadQueued,
			Attempt:   p.attempts[k],
			StartedAt: p.now().UTC(),
		},
		done: make(chan struct{}),
	}
	if _, seen := p.tasks[k]; !seen {
		p.byMarker[markerID] = append(p.byMarker[markerID], k)
	}
	p.tasks[k] = e
	t := e.task
	p.mu.Unlock()

	go p.run(context.WithoutCancel(ctx), k, e)
	return t, true
}

func (p *PhotoUploadPipeline) run(ctx context.Context, k uploadKey, e *uploadEntry) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	metrics.UploadsInFlight.Inc()
	defer metrics.UploadsInFlight.Dec()

	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPhotoUpload)
	span.SetAttributes(
		attribute.String(telemetry.AttrMarkerID, k.markerID),
		attribute.String(telemetry.AttrPhotoRef, k.photoRef),
		attribute.Int(telemetry.AttrAttempt, e.task.Attempt),
	)
	defer span.End()

	url, err := p.transfer(ctx, k, e)

	p.mu.Lock()
	e.task.FinishedAt = p.now().UTC()
	if err != nil {
		e.task.Status = domain.UploadFailed
		e.task.Err = err
		e.task.Error = err.Error()
	} else {
		e.task.Status = domain.UploadSucceeded
		e.task.Progress = 1
		e.task.RemoteURL = url
	}
	t := e.task
	p.mu.Unlock()
	close(e.done)

	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.PhotoUploads.WithLabelValues("failed").Inc()
		p.log.Error("photo upload failed",
			"marker_id", k.markerID, "photo_ref", k.photoRef, "attempt", t.Attempt, "error", err)
		return
	}

	metrics.PhotoUploads.WithLabelValues("succeeded").Inc()
	p.log.Info("photo attached", "marker_id", k.markerID, "photo_ref", k.photoRef, "attempt", t.Attempt)
	if p.publisher != nil {
		if err := p.publisher.PublishPhotoAttached(ctx, t); err != nil {
			p.log.Warn("publish photo attached", "marker_id", k.markerID, "error", err)
		}
	}
}

// transfer runs the read, upload and attach steps and returns the remote URL.
func (p *PhotoUploadPipeline) transfer(ctx context.Context, k uploadKey, e *uploadEntry) (string, error) {
	data, contentType, err := p.source.Read(ctx, k.photoRef)
	if err != nil {
		return "", &domain.SourceReadError{Ref: k.photoRef, Cause: err}
	}

	p.setStatus(e, domain.UploadUploading, 0)

	key := p.objectKey(k.markerID)
	if err := p.blobs.Upload(ctx, key, data, contentType); err != nil {
		return "", &domain.UploadError{Key: key, Cause: err}
	}
	p.setStatus(e, domain.UploadUploading, 0.9)

	url, err := p.blobs.URL(ctx, key)
	if err != nil {
		return "", &domain.UploadError{Key: key, Cause: fmt.Errorf("resolve url: %w", err)}
	}

	// Remote append and local mirror happen under one per-marker lock so
	// both see concurrent completions in the same order.
	lock := p.attachLock(k.markerID)
	lock.Lock()
	defer lock.Unlock()

	ref := ports.DocumentRef{Collection: p.collection, ID: k.markerID}
	err = p.docs.AppendToArrayFields(ctx, ref, map[string]string{
		domain.FieldPhotos:    k.photoRef,
		domain.FieldImageURLs: url,
	})
	if err != nil {
		return "", &domain.RemoteWriteError{Op: "append photo", Cause: err}
	}

	ok := p.store.Patch(k.markerID, func(m *domain.Marker) {
		m.PhotoRefs = append(m.PhotoRefs, k.photoRef)
		m.ImageURLs = append(m.ImageURLs, url)
	})
	if !ok {
		p.log.Warn("marker missing locally after remote attach; next reload reconciles",
			"marker_id", k.markerID, "photo_ref", k.photoRef)
	}
	return url, nil
}

func (p *PhotoUploadPipeline) setStatus(e *uploadEntry, s domain.UploadStatus, progress float64) {
	p.mu.Lock()
	e.task.Status = s
	e.task.Progress = progress
	p.mu.Unlock()
}

// objectKey returns images/<millis>_<markerID>. The millisecond clock is
// strictly increasing per pipeline so retries never reuse a key.
func (p *PhotoUploadPipeline) objectKey(markerID string) string {
	p.mu.Lock()
	ms := p.now().UnixMilli()
	if ms <= p.lastKey {
		ms = p.lastKey + 1
	}
	p.lastKey = ms
	p.mu.Unlock()
	return fmt.Sprintf("images/%d_%s", ms, markerID)
}

func (p *PhotoUploadPipeline) attachLock(markerID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.attach[markerID]
	if !ok {
		l = &sync.Mutex{}
		p.attach[markerID] = l
	}
	return l
}

// Task returns the latest task for the pair.
func (p *PhotoUploadPipeline) Task(markerID, photoRef string) (domain.UploadTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.tasks[uploadKey{markerID: markerID, photoRef: photoRef}]
	if !ok {
		return domain.UploadTask{}, false
	}
	return e.task, true
}

// Tasks returns the latest task of every photo enqueued for a marker, in
// first-enqueue order.
func (p *PhotoUploadPipeline) Tasks(markerID string) []domain.UploadTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := p.byMarker[markerID]
	out := make([]domain.UploadTask, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.tasks[k].task)
	}
	return out
}

// Wait blocks until the latest task for the pair is terminal.
func (p *PhotoUploadPipeline) Wait(ctx context.Context, markerID, photoRef string) (domain.UploadTask, error) {
	k := uploadKey{markerID: markerID, photoRef: photoRef}

	p.mu.Lock()
	e, ok := p.tasks[k]
	p.mu.Unlock()
	if !ok {
		return domain.UploadTask{}, fmt.Errorf("no upload for %s/%s", markerID, photoRef)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return domain.UploadTask{}, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return e.task, nil
}
