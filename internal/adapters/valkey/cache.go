package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ErrMiss is returned by Get for absent keys.
var ErrMiss = errors.New("cache miss")

// Cache implements ports.AddressCache using Valkey (Redis-compatible), so
// several daemons on one network can share geocodes.
type Cache struct {
	client valkey.Client
}

// New creates a new Valkey cache client.
func New(addr string) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Cache{client: client}, nil
}

// Get retrieves a value by key, or ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get %s: %w", key, err)
	}
	return b, nil
}

// Set stores a value. ttlSeconds of zero keeps it until evicted.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	var cmd valkey.Completed
	if ttlSeconds > 0 {
		cmd = c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(time.Duration(ttlSeconds) * time.Second).Build()
	} else {
		cmd = c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()
	}
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set %s: %w", key, err)
	}
	return nil
}

// Ping checks the server answers.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (c *Cache) Close() {
	c.client.Close()
}
