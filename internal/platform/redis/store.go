// Package redis provides a ratelimit.Store backed by Redis so that several
// server instances share one set of counters.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/prep-api/internal/ratelimit"
)

// DefaultKeyPrefix namespaces every counter key.
const DefaultKeyPrefix = "prep:ratelimit:"

// incrementIfBelow checks and increments one counter in a single round trip.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = ttl in milliseconds, applied when the counter is created
var incrementIfBelow = goredis.NewScript(
	"local count = tonumber(redis.call('GET', KEYS[1]) or '0')\n" +
		"if count >= tonumber(ARGV[1]) then\n" +
		"  return {count, 0}\n" +
		"end\n" +
		"count = redis.call('INCR', KEYS[1])\n" +
		"if count == 1 then\n" +
		"  redis.call('PEXPIRE', KEYS[1], ARGV[2])\n" +
		"end\n" +
		"return {count, 1}\n",
)

// Store implements ratelimit.Store. Counters expire on their own one window
// after creation, so DeleteExpired has nothing to do.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ ratelimit.Store = (*Store)(nil)

// NewStore wraps an existing client.
func NewStore(client goredis.UniversalClient) *Store {
	return &Store{client: client, prefix: DefaultKeyPrefix}
}

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis: url is empty")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// IncrementIfBelow implements ratelimit.Store.
func (s *Store) IncrementIfBelow(ctx context.Context, b ratelimit.Bucket, limit int) (int, bool, error) {
	ttl := b.Window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	res, err := incrementIfBelow.Run(ctx, s.client, []string{s.key(b)}, limit, ttl).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis: increment %s: %w", b.Key, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis: unexpected script reply %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

// DeleteExpired implements ratelimit.Store. Redis evicts counters itself.
func (s *Store) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *Store) key(b ratelimit.Bucket) string {
	return s.prefix + b.Key + ":" + strconv.FormatInt(b.Start.Unix(), 10)
}
