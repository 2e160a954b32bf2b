package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fedwatch.dashboard/internal/core/ports"
)

// MetricsReader reads metrics that servers and clients write to their own
// redis instances. Connections are opened lazily per address and reused.
type MetricsReader struct {
	mu      sync.Mutex
	clients map[string]*redis.Client
	timeout time.Duration
}

var _ ports.MetricsReader = (*MetricsReader)(nil)

func NewMetricsReader(timeout time.Duration) *MetricsReader {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MetricsReader{
		clients: make(map[string]*redis.Client),
		timeout: timeout,
	}
}

// ReadMetrics returns the JSON stored under key, or "" when it is missing.
func (m *MetricsReader) ReadMetrics(ctx context.Context, address, key string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("no redis address for %q", key)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	raw, err := m.client(address).Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %q from %s: %w", key, address, err)
	}
	return raw, nil
}

func (m *MetricsReader) client(address string) *redis.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[address]
	if !ok {
		c = redis.NewClient(&redis.Options{
			Addr:        address,
			DialTimeout: m.timeout,
			ReadTimeout: m.timeout,
		})
		m.clients[address] = c
	}
	return c
}

// Close closes every pooled connection.
func (m *MetricsReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for addr, c := range m.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.clients, addr)
	}
	return errors.Join(errs...)
}
