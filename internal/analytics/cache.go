package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Every metric key embeds the generation stored at generationKey. Bumping the
// generation orphans all earlier entries; they age out after the TTL.
const (
	generationKey = "wms:analytics:generation"
	// BumpChannel carries the new generation to API replicas after a bump.
	BumpChannel = "wms.analytics.bump"
)

// Cache stores computed metrics in Redis as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	// gen memoises the generation between bumps; 0 means unknown.
	gen atomic.Int64
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Generation returns the current key generation, creating it on first use.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	if gen := c.gen.Load(); gen > 0 {
		return gen, nil
	}
	if err := c.client.SetNX(ctx, generationKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil {
		return 0, err
	}
	if gen <= 0 {
		gen = 1
	}
	c.gen.Store(gen)
	return gen, nil
}

// get decodes the entry at key into dest and reports whether it existed.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		// A payload from an older build; treat as a miss.
		return false, nil
	}
	return true, nil
}

func (c *Cache) put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump moves every metric to a new generation and tells peers about it.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	gen, err := c.client.Incr(ctx, generationKey).Result()
	if err != nil {
		c.gen.Store(0)
		return err
	}
	c.gen.Store(gen)
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(gen, 10)).Err()
}

// ListenForInvalidation follows bumps published by other processes until ctx
// is done. It returns immediately; the subscription runs in the background.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if !c.enabled() {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				c.observeBump(msg.Payload)
			}
		}
	}()
	return nil
}

// observeBump records a generation announced by a peer. Unparseable payloads
// reset the memo so the next read goes back to Redis.
func (c *Cache) observeBump(payload string) {
	gen, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || gen <= 0 {
		c.gen.Store(0)
		return
	}
	for {
		cur := c.gen.Load()
		if gen <= cur || c.gen.CompareAndSwap(cur, gen) {
			return
		}
	}
}

func metricKey(gen int64, metric string, f Filter) string {
	zone := f.Zone
	if zone == "" {
		zone = "-"
	}
	return strings.Join([]string{
		"wms", "analytics", metric,
		f.From.Format("20060102"), f.To.Format("20060102"), zone,
		strconv.FormatInt(gen, 10),
	}, ":")
}
