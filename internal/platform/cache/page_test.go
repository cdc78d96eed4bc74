package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmarket/api/internal/domain"
)

// testRedisClient returns a client on DB 15, skipping when Redis is absent.
func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := Connect(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 15)
	if err != nil {
		t.Skipf("skipping integration test: redis not reachable: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, pageKeyPrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})
	return client
}

func TestPageCacheInvalidate(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()
	pc, err := NewPageCache(client, nil)
	require.NoError(t, err)

	require.NoError(t, client.Set(ctx, PageKey("/blog/old"), "<html>", time.Minute).Err())
	require.NoError(t, client.Set(ctx, PageKey("/blog/keep"), "<html>", time.Minute).Err())

	require.NoError(t, pc.Invalidate(ctx, "/blog/old", "blog/new/"))

	n, err := client.Exists(ctx, PageKey("/blog/old")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = client.Exists(ctx, PageKey("/blog/keep")).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPageCacheInvalidatePrefix(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()
	pc, err := NewPageCache(client, nil)
	require.NoError(t, err)

	for _, p := range []string{"/interviews/a", "/interviews/b", "/blog/c"} {
		require.NoError(t, client.Set(ctx, PageKey(p), "x", time.Minute).Err())
	}
	deleted, err := pc.InvalidatePrefix(ctx, "/interviews/")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	n, err := client.Exists(ctx, PageKey("/blog/c")).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPageKeyNormalizesPath(t *testing.T) {
	assert.Equal(t, "page:/blog/post", PageKey("blog/post/"))
	assert.Equal(t, "page:/", PageKey(""))
}

func TestNewPageCacheRequiresClient(t *testing.T) {
	_, err := NewPageCache(nil, nil)
	assert.Error(t, err)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func TestEventInvalidatorPublishesPerPath(t *testing.T) {
	pub := &recordingPublisher{}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	inv, err := NewEventInvalidator(pub, func() time.Time { return now })
	require.NoError(t, err)

	require.NoError(t, inv.Invalidate(context.Background(), "/blog/old", "", "/blog/new"))

	require.Len(t, pub.events, 2)
	assert.Equal(t, domain.EventContentChanged, pub.events[0].Type)
	assert.Equal(t, "/blog/old", pub.events[0].Subject)
	assert.Equal(t, "/blog/new", pub.events[1].Attributes["path"])
	assert.Equal(t, now, pub.events[1].OccurredAt)
}

type stubInvalidator struct {
	paths []string
	err   error
}

func (s *stubInvalidator) Invalidate(_ context.Context, paths ...string) error {
	s.paths = append(s.paths, paths...)
	return s.err
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	first := &stubInvalidator{err: boom}
	second := &stubInvalidator{}

	err := Multi{first, nil, second}.Invalidate(context.Background(), "/blog/a")

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"/blog/a"}, first.paths)
	assert.Equal(t, []string{"/blog/a"}, second.paths, "later invalidators still run after a failure")
	assert.NoError(t, Noop{}.Invalidate(context.Background(), "/x"))
}
