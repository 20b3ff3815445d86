package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/safar/secondhand-store/internal/models"
)

const (
	keyPrefix     = "report:v1:"
	keyGeneration = keyPrefix + "gen"

	reportCategoryStats    = "category_stats"
	reportConditionStats   = "condition_stats"
	reportCategoryAverages = "category_avg_price"
	reportSales            = "sales"

	defaultLoadTimeout = 30 * time.Second
)

// storeIfCurrent writes ARGV[2] to KEYS[2] only while the generation in
// KEYS[1] still equals ARGV[1]. ARGV[3] is the TTL in milliseconds.
var storeIfCurrent = redis.NewScript(`
if (redis.call('GET', KEYS[1]) or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// Recorder observes cache lookups. observability.Metrics satisfies it.
type Recorder interface {
	ObserveReportCache(report string, hit bool)
}

// Cache serves reports from Redis and falls back to the wrapped Source on a
// miss. Redis failures are logged and never surface to the caller; concurrent
// misses for the same key share one Source call.
//
// Entries live under a generation number. Invalidate bumps the generation,
// and a load only writes its result back if the generation it started under
// is still current, so a load racing a write cannot repopulate stale figures.
type Cache struct {
	source      Source
	client      redis.Cmdable
	ttl         time.Duration
	loadTimeout time.Duration
	logger      *zap.Logger
	recorder    Recorder
	group       singleflight.Group
}

type CacheOption func(*Cache)

func WithRecorder(r Recorder) CacheOption {
	return func(c *Cache) {
		c.recorder = r
	}
}

// WithLoadTimeout bounds a shared Source load. The load is detached from the
// caller that started it, so this is its only deadline.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// NewCache wraps source. A nil client, including a typed nil, disables
// caching and every call goes straight to source.
func NewCache(source Source, client redis.Cmdable, ttl time.Duration, logger *zap.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		source:      source,
		client:      nonNilClient(client),
		ttl:         ttl,
		loadTimeout: defaultLoadTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func nonNilClient(client redis.Cmdable) redis.Cmdable {
	switch cl := client.(type) {
	case nil:
		return nil
	case *redis.Client:
		if cl == nil {
			return nil
		}
	case *redis.ClusterClient:
		if cl == nil {
			return nil
		}
	case *redis.Ring:
		if cl == nil {
			return nil
		}
	}
	return client
}

func (c *Cache) StatsByCategory(ctx context.Context) ([]models.CategoryStats, error) {
	return cached(ctx, c, reportCategoryStats, reportCategoryStats, c.source.StatsByCategory)
}

func (c *Cache) StatsByCondition(ctx context.Context) ([]models.ConditionCount, error) {
	return cached(ctx, c, reportConditionStats, reportConditionStats, c.source.StatsByCondition)
}

func (c *Cache) AveragePriceByCategory(ctx context.Context) ([]models.CategoryAveragePrice, error) {
	return cached(ctx, c, reportCategoryAverages, reportCategoryAverages, c.source.AveragePriceByCategory)
}

func (c *Cache) SalesBetween(ctx context.Context, start, end time.Time) (*models.SalesTotal, error) {
	name := reportSales + ":" + strconv.FormatInt(start.UnixNano(), 10) + ":" + strconv.FormatInt(end.UnixNano(), 10)
	return cached(ctx, c, reportSales, name, func(ctx context.Context) (*models.SalesTotal, error) {
		return c.source.SalesBetween(ctx, start, end)
	})
}

// Invalidate retires every cached report by moving to a new generation.
// Entries of older generations are never read again and expire by TTL.
// Callers invoke it after writes that change listings or order status.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, keyGeneration).Err(); err != nil {
		return fmt.Errorf("bump report cache generation: %w", err)
	}
	return nil
}

func entryKey(generation int64, name string) string {
	return keyPrefix + strconv.FormatInt(generation, 10) + ":" + name
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, keyGeneration).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Cache) observe(report string, hit bool) {
	if c.recorder != nil {
		c.recorder.ObserveReportCache(report, hit)
	}
}

func cached[T any](ctx context.Context, c *Cache, report, name string, load func(context.Context) (T, error)) (T, error) {
	if c.client == nil {
		return load(ctx)
	}

	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn("report cache generation read failed", zap.String("report", report), zap.Error(err))
		return load(ctx)
	}
	key := entryKey(gen, name)

	if value, ok := c.lookup(ctx, key, new(T)); ok {
		c.observe(report, true)
		return *value.(*T), nil
	}
	c.observe(report, false)

	// The shared load outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.store(loadCtx, gen, key, value)
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *Cache) lookup(ctx context.Context, key string, dest any) (any, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		c.logger.Warn("report cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return dest, true
}

func (c *Cache) store(ctx context.Context, generation int64, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("report cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	stored, err := storeIfCurrent.Run(ctx, c.client,
		[]string{keyGeneration, key},
		strconv.FormatInt(generation, 10), payload, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	if stored == 0 {
		c.logger.Debug("report cache write skipped, generation moved", zap.String("key", key))
	}
}

var (
	_ Source = (*Reporter)(nil)
	_ Source = (*Cache)(nil)
)
