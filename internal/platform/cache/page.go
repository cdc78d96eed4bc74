// Package cache invalidates rendered public pages after content changes.
// The front end stores rendered HTML in Redis under page:<path>; this service
// only ever removes entries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fitmarket/api/internal/domain"
)

const pageKeyPrefix = "page:"

// Invalidator drops cached copies of public paths such as /blog/my-post.
type Invalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// Connect creates a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// PageCache removes page:<path> entries from Redis.
type PageCache struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewPageCache wraps client. A nil logger disables logging.
func NewPageCache(client redis.Cmdable, logger *zap.Logger) (*PageCache, error) {
	if client == nil {
		return nil, errors.New("page cache: redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageCache{client: client, logger: logger}, nil
}

// PageKey returns the Redis key holding the rendered page at path.
func PageKey(path string) string {
	return pageKeyPrefix + normalizePath(path)
}

// Invalidate deletes the keys for paths in a single DEL.
func (c *PageCache) Invalidate(ctx context.Context, paths ...string) error {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = normalizePath(p); p != "/" {
			keys = append(keys, pageKeyPrefix+p)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	removed, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("page cache invalidate: %w", err)
	}
	c.logger.Debug("page cache invalidated", zap.Strings("keys", keys), zap.Int64("removed", removed))
	return nil
}

// InvalidatePrefix scans for every cached page under prefix and deletes it.
func (c *PageCache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := pageKeyPrefix + normalizePath(prefix) + "*"
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("page cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("page cache bulk delete: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// Publisher is satisfied by jobs.PubSubEventPublisher.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// EventInvalidator announces invalidated paths as content.changed events so
// edge caches and other replicas can drop their copies.
type EventInvalidator struct {
	publisher Publisher
	clock     func() time.Time
}

// NewEventInvalidator wraps publisher.
func NewEventInvalidator(publisher Publisher, clock func() time.Time) (*EventInvalidator, error) {
	if publisher == nil {
		return nil, errors.New("event invalidator: publisher is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &EventInvalidator{publisher: publisher, clock: clock}, nil
}

// Invalidate publishes one event per path.
func (e *EventInvalidator) Invalidate(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		p = normalizePath(p)
		if p == "/" {
			continue
		}
		err := e.publisher.Publish(ctx, domain.Event{
			Type:       domain.EventContentChanged,
			Subject:    p,
			OccurredAt: e.clock().UTC(),
			Attributes: map[string]string{"path": p},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Multi fans out to every invalidator and joins their errors.
type Multi []Invalidator

// Invalidate implements Invalidator.
func (m Multi) Invalidate(ctx context.Context, paths ...string) error {
	var errs []error
	for _, inv := range m {
		if inv == nil {
			continue
		}
		if err := inv.Invalidate(ctx, paths...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards invalidations. Used when neither Redis nor Pub/Sub is configured.
type Noop struct{}

// Invalidate implements Invalidator.
func (Noop) Invalidate(context.Context, ...string) error { return nil }

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
