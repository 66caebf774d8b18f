// Package events mirrors DAP stopped/continued/output/breakpoint events to
// an external Redis channel (SPEC_FULL.md §3 "event mirror"), for
// dashboards and tooling that want to observe a debug session without
// speaking DAP themselves. Publishing is best-effort: it never blocks or
// fails the DAP hot path, mirroring the fire-and-forget discipline the
// teacher's pkg/redis handler uses for cache invalidation broadcasts.
//
// Grounded on the teacher's pkg/redis.Client.Publish/NewClient(config):
// the go-redis client construction (a single-node *redis.Client, not the
// teacher's UniversalClient) and Config/Address shape carry over, narrowed to the one operation (Publish) this server
// needs instead of the teacher's full key/value/hash/set/pubsub surface.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger is the subset of internal/logging's Logger/ContextLogger that the
// mirror needs to report publish failures.
type Logger interface {
	Warn(msg string)
}

// Channel is the Redis pub/sub channel DAP events are mirrored to.
const Channel = "dap-events"

// Config configures the optional Redis mirror. An empty Addr disables it.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Envelope is the JSON payload published for each mirrored event.
type Envelope struct {
	Type      string      `json:"type"` // "stopped", "continued", "output", "breakpoint"
	Timestamp time.Time   `json:"timestamp"`
	Body      interface{} `json:"body"`
}

// Mirror publishes DAP event envelopes to Redis. A nil *Mirror is valid and
// Publish becomes a no-op, so callers can hold one unconditionally.
type Mirror struct {
	client *redis.Client
	logger Logger
}

// Open connects a Mirror per cfg. An empty cfg.Addr disables the mirror and
// Open returns (nil, nil).
func Open(ctx context.Context, cfg Config, logger Logger) (*Mirror, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Mirror{client: client, logger: logger}, nil
}

// Close releases the underlying connection.
func (m *Mirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Publish mirrors one DAP event. Errors are logged and swallowed: a Redis
// hiccup must never stall or fail a debug session.
func (m *Mirror) Publish(ctx context.Context, eventType string, body interface{}) {
	if m == nil {
		return
	}
	payload, err := json.Marshal(Envelope{Type: eventType, Timestamp: time.Now(), Body: body})
	if err != nil {
		if m.logger != nil {
			m.logger.Warn(fmt.Sprintf("events: marshal envelope failed: type=%s error=%v", eventType, err))
		}
		return
	}
	if err := m.client.Publish(ctx, Channel, payload).Err(); err != nil {
		if m.logger != nil {
			m.logger.Warn(fmt.Sprintf("events: publish failed: type=%s error=%v", eventType, err))
		}
	}
}
