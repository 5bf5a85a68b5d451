package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/fieldpins/internal/adapters/nats"
	"github.com/samirrijal/fieldpins/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to channels.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "all" | "markers" | "observer"
}

// channelSubjects maps client channels to NATS subjects.
var channelSubjects = map[string]string{
	"all":      natsadapter.SubjectAll,
	"markers":  "fieldpins.markers.>",
	"observer": "fieldpins.observer.>",
}

// WebSocketHandler relays fieldpins events from NATS to connected clients.
// New clients receive every event; they can narrow that with
// {"action":"unsubscribe","channel":"all"} followed by a narrower subscribe.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		log := slog.Default().With("component", "ws", "remote", c.RemoteAddr().String())
		if nc == nil {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"event relay not configured"}`))
			return
		}
		log.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription)

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		relay := func(msg *nats.Msg) {
			_ = writeJSON(json.RawMessage(msg.Data))
		}

		sub, err := nc.Subscribe(natsadapter.SubjectAll, relay)
		if err != nil {
			log.Error("ws default subscribe failed", "error", err)
			return
		}
		subs[natsadapter.SubjectAll] = sub

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if m.Channel == "" {
				m.Channel = "all"
			}
			subject, ok := channelSubjects[m.Channel]
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				s, exists := subs[subject]
				if !exists {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
					continue
				}
				_ = s.Unsubscribe()
				delete(subs, subject)
				_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Info("ws client disconnected")
	}
}
