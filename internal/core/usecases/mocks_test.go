package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

// --- Mock GeocodeProvider ---

type mockGeocoder struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, lat, lon float64) (domain.Address, error)
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, lat, lon)
	}
	return domain.Address{Street: "Main", City: "X", Region: "Y", Country: "Z"}, nil
}

func (m *mockGeocoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Mock AddressCache ---

type mockAddressCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]int
}

func newMockAddressCache() *mockAddressCache {
	return &mockAddressCache{data: map[string][]byte{}, ttl: map[string]int{}}
}

func (m *mockAddressCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *mockAddressCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttl[key] = ttlSeconds
	return nil
}

// --- In-memory DocumentStore ---

type memDocs struct {
	mu        sync.Mutex
	next      int
	docs      map[string]domain.MarkerDocument
	appends   int
	reserveFn func(ctx context.Context, collection string) (ports.DocumentRef, error)
	writeFn   func(ctx context.Context, ref ports.DocumentRef, doc domain.MarkerDocument) error
	listFn    func(ctx context.Context, collection string) ([]ports.DocumentSnapshot, error)
	appendFn  func(ctx context.Context, ref ports.DocumentRef, values map[string]string) error
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[string]domain.MarkerDocument{}}
}

func (m *memDocs) ReserveID(ctx context.Context, collection string) (ports.DocumentRef, error) {
	if m.reserveFn != nil {
		return m.reserveFn(ctx, collection)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return ports.DocumentRef{Collection: collection, ID: fmt.Sprintf("doc-%d", m.next)}, nil
}

func (m *memDocs) Write(ctx context.Context, ref ports.DocumentRef, doc domain.MarkerDocument) error {
	if m.writeFn != nil {
		if err := m.writeFn(ctx, ref, doc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[ref.ID] = doc
	return nil
}

func (m *memDocs) ListAll(ctx context.Context, collection string) ([]ports.DocumentSnapshot, error) {
	if m.listFn != nil {
		return m.listFn(ctx, collection)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.DocumentSnapshot, 0, len(m.docs))
	for id, d := range m.docs {
		out = append(out, ports.DocumentSnapshot{ID: id, Data: d})
	}
	return out, nil
}

func (m *memDocs) AppendToArrayFields(ctx context.Context, ref ports.DocumentRef, values map[string]string) error {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, ref, values); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[ref.ID]
	if !ok {
		return fmt.Errorf("no document %s", ref.ID)
	}
	d.Photos = append(d.Photos, values[domain.FieldPhotos])
	d.ImageURLs = append(d.ImageURLs, values[domain.FieldImageURLs])
	m.docs[ref.ID] = d
	m.appends++
	return nil
}

func (m *memDocs) Doc(id string) (domain.MarkerDocument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return d, ok
}

func (m *memDocs) Reserved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

func (m *memDocs) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

// --- Mock BlobStore ---

type mockBlobs struct {
	mu       sync.Mutex
	keys     []string
	uploadFn func(ctx context.Context, key string, data []byte, contentType string) error
}

func (m *mockBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if m.uploadFn != nil {
		if err := m.uploadFn(ctx, key, data, contentType); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	return nil
}

func (m *mockBlobs) URL(ctx context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (m *mockBlobs) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.keys...)
}

// --- Mock PhotoSource ---

type mockSource struct {
	readFn func(ctx context.Context, ref string) ([]byte, string, error)
}

func (m *mockSource) Read(ctx context.Context, ref string) ([]byte, string, error) {
	if m.readFn != nil {
		return m.readFn(ctx, ref)
	}
	return []byte("jpeg:" + ref), "image/jpeg", nil
}

// --- Mock LocationProvider ---

type mockSubscription struct {
	mu        sync.Mutex
	cancelled bool
}

func (s *mockSubscription) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *mockSubscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

type mockLocation struct {
	permissionFn func(ctx context.Context) (bool, error)
	fixFn        func(ctx context.Context) (domain.Position, error)

	mu    sync.Mutex
	opts  ports.WatchOptions
	push  func(domain.Position)
	sub   *mockSubscription
	subs  []*mockSubscription
	watch int
}

func (m *mockLocation) RequestPermission(ctx context.Context) (bool, error) {
	if m.permissionFn != nil {
		return m.permissionFn(ctx)
	}
	return true, nil
}

func (m *mockLocation) CurrentFix(ctx context.Context) (domain.Position, error) {
	if m.fixFn != nil {
		return m.fixFn(ctx)
	}
	return domain.Position{Latitude: 10, Longitude: 20, Accuracy: 5, Timestamp: time.Now()}, nil
}

func (m *mockLocation) Watch(ctx context.Context, opts ports.WatchOptions, fn func(domain.Position)) (ports.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	m.push = fn
	m.sub = &mockSubscription{}
	m.subs = append(m.subs, m.sub)
	m.watch++
	return m.sub, nil
}

// Subscriptions returns every subscription handed out so far.
func (m *mockLocation) Subscriptions() []*mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*mockSubscription{}, m.subs...)
}

// Push delivers a position as if the sensor reported it.
func (m *mockLocation) Push(p domain.Position) {
	m.mu.Lock()
	fn := m.push
	m.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	placed   []domain.Marker
	attached []domain.UploadTask
	position []domain.Position
}

func (m *mockPublisher) PublishMarkerPlaced(ctx context.Context, mk domain.Marker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, mk)
	return nil
}

func (m *mockPublisher) PublishPhotoAttached(ctx context.Context, task domain.UploadTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = append(m.attached, task)
	return nil
}

func (m *mockPublisher) PublishObserverPosition(ctx context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = append(m.position, p)
	return nil
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
