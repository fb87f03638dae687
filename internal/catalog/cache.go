package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedCatalog fronts a Catalog with Redis. Scanners hit the same handful of
// products many times per minute, so hits are cached; misses are not, to let
// newly created products resolve immediately.
type CachedCatalog struct {
	next   Catalog
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedCatalog wraps next. A nil client disables caching.
func NewCachedCatalog(next Catalog, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{next: next, client: client, ttl: ttl, logger: logger}
}

// FindByUPC resolves by barcode.
func (c *CachedCatalog) FindByUPC(ctx context.Context, upc string) (Product, error) {
	return c.fetch(ctx, cacheKey("upc", upc), func(ctx context.Context) (Product, error) {
		return c.next.FindByUPC(ctx, upc)
	})
}

// FindBySKU resolves by SKU.
func (c *CachedCatalog) FindBySKU(ctx context.Context, sku string) (Product, error) {
	return c.fetch(ctx, cacheKey("sku", strings.ToUpper(sku)), func(ctx context.Context) (Product, error) {
		return c.next.FindBySKU(ctx, sku)
	})
}

// Get resolves by id.
func (c *CachedCatalog) Get(ctx context.Context, id int64) (Product, error) {
	return c.fetch(ctx, cacheKey("id", strconv.FormatInt(id, 10)), func(ctx context.Context) (Product, error) {
		return c.next.Get(ctx, id)
	})
}

// Invalidate drops every cached lookup of the product.
func (c *CachedCatalog) Invalidate(ctx context.Context, p Product) error {
	if c.client == nil {
		return nil
	}
	keys := []string{cacheKey("id", strconv.FormatInt(p.ID, 10)), cacheKey("sku", strings.ToUpper(p.SKU))}
	if p.UPC != "" {
		keys = append(keys, cacheKey("upc", p.UPC))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *CachedCatalog) fetch(ctx context.Context, key string, loader func(context.Context) (Product, error)) (Product, error) {
	if c.client == nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p Product
		if err := json.Unmarshal(payload, &p); err == nil {
			return p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("catalog cache read", slog.String("key", key), slog.Any("error", err))
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		return loader(ctx)
	})
	if err != nil {
		return Product{}, err
	}
	p := value.(Product)
	raw, err := json.Marshal(p)
	if err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write", slog.String("key", key), slog.Any("error", err))
		}
	}
	return p, nil
}

func cacheKey(kind, value string) string {
	return "wms:catalog:" + kind + ":" + value
}
