package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// Subjects published by the daemon. The WebSocket relay subscribes to
// SubjectAll.
const (
	SubjectMarkerPlaced     = "fieldpins.markers.placed"
	SubjectPhotoAttached    = "fieldpins.markers.photo_attached"
	SubjectObserverPosition = "fieldpins.observer.position"
	SubjectAll              = "fieldpins.>"
)

// Event is the envelope written for every subject.
type Event struct {
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the event streams exist.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      "FIELDPINS_MARKERS",
			Subjects:  []string{"fieldpins.markers.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "FIELDPINS_OBSERVER",
			Subjects:  []string{"fieldpins.observer.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			MaxMsgs:   10_000,
			Storage:   nats.MemoryStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist; try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishMarkerPlaced(ctx context.Context, m domain.Marker) error {
	return p.publish(ctx, SubjectMarkerPlaced, "marker.placed", m)
}

func (p *Publisher) PublishPhotoAttached(ctx context.Context, task domain.UploadTask) error {
	return p.publish(ctx, SubjectPhotoAttached, "marker.photo_attached", task)
}

// PublishObserverPosition uses core NATS; positions are high-rate and
// only interesting while fresh.
func (p *Publisher) PublishObserverPosition(ctx context.Context, pos domain.Position) error {
	data, err := Encode("observer.position", pos)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectObserverPosition, data)
}

func (p *Publisher) publish(ctx context.Context, subject, typ string, v any) error {
	data, err := Encode(typ, v)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Encode wraps v in an Event envelope.
func Encode(typ string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return json.Marshal(Event{Type: typ, At: time.Now().UTC(), Data: raw})
}

// Ping reports whether the connection is up.
func (p *Publisher) Ping() error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats: %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("fieldpins"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
