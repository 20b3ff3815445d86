package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safar/secondhand-store/internal/models"
)

type fakeSource struct {
	mu         sync.Mutex
	calls      map[string]int
	categories []models.CategoryStats
	err        error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[string]int),
		categories: []models.CategoryStats{
			{CategoryID: 1, CategoryName: "Electronics", ProductCount: 2, AveragePrice: decimal.RequireFromString("115.50")},
		},
	}
}

func (f *fakeSource) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.err
}

func (f *fakeSource) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) StatsByCategory(ctx context.Context) ([]models.CategoryStats, error) {
	if err := f.record("category"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories, nil
}

func (f *fakeSource) setAverage(price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = []models.CategoryStats{
		{CategoryID: 1, CategoryName: "Electronics", ProductCount: 2, AveragePrice: decimal.RequireFromString(price)},
	}
}

// gatedSource reads its figures, signals started, then holds the result
// until release is closed. loadErr receives the load context's error at the
// moment it resumes.
type gatedSource struct {
	*fakeSource
	started chan struct{}
	release chan struct{}
	loadErr chan error
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		fakeSource: newFakeSource(),
		started:    make(chan struct{}, 4),
		release:    make(chan struct{}),
		loadErr:    make(chan error, 4),
	}
}

func (g *gatedSource) StatsByCategory(ctx context.Context) ([]models.CategoryStats, error) {
	stats, err := g.fakeSource.StatsByCategory(ctx)
	g.started <- struct{}{}
	<-g.release
	g.loadErr <- ctx.Err()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return stats, err
}

func (f *fakeSource) StatsByCondition(ctx context.Context) ([]models.ConditionCount, error) {
	if err := f.record("condition"); err != nil {
		return nil, err
	}
	return []models.ConditionCount{{Condition: models.ConditionGood, Label: "Good", Count: 3}}, nil
}

func (f *fakeSource) AveragePriceByCategory(ctx context.Context) ([]models.CategoryAveragePrice, error) {
	if err := f.record("average"); err != nil {
		return nil, err
	}
	return []models.CategoryAveragePrice{{CategoryName: "Electronics", AveragePrice: decimal.RequireFromString("115.50")}}, nil
}

func (f *fakeSource) SalesBetween(ctx context.Context, start, end time.Time) (*models.SalesTotal, error) {
	if err := f.record("sales"); err != nil {
		return nil, err
	}
	return &models.SalesTotal{From: start, To: end, Total: decimal.RequireFromString("250.00")}, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (r *countingRecorder) ObserveReportCache(report string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func newTestCache(t *testing.T, source Source, opts ...CacheOption) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(source, client, time.Minute, zap.NewNop(), opts...), mr
}

func TestCacheServesRepeatedReadsFromRedis(t *testing.T) {
	source := newFakeSource()
	recorder := &countingRecorder{}
	cache, mr := newTestCache(t, source, WithRecorder(recorder))
	ctx := context.Background()

	first, err := cache.StatsByCategory(ctx)
	require.NoError(t, err)
	second, err := cache.StatsByCategory(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, source.count("category"))
	require.Len(t, second, 1)
	assert.Equal(t, first[0].CategoryName, second[0].CategoryName)
	assert.True(t, first[0].AveragePrice.Equal(second[0].AveragePrice))
	assert.True(t, mr.Exists(entryKey(0, reportCategoryStats)))
	assert.Equal(t, 1, recorder.hits)
	assert.Equal(t, 1, recorder.misses)
}

func TestCacheEntriesExpire(t *testing.T) {
	source := newFakeSource()
	cache, mr := newTestCache(t, source)
	ctx := context.Background()

	_, err := cache.StatsByCondition(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cache.StatsByCondition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count("condition"))
}

func TestCacheKeysSalesByRange(t *testing.T) {
	source := newFakeSource()
	cache, _ := newTestCache(t, source)
	ctx := context.Background()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	total, err := cache.SalesBetween(ctx, jan, feb)
	require.NoError(t, err)
	assert.Equal(t, "250", total.Total.String())

	_, err = cache.SalesBetween(ctx, jan, feb)
	require.NoError(t, err)
	_, err = cache.SalesBetween(ctx, jan, mar)
	require.NoError(t, err)

	assert.Equal(t, 2, source.count("sales"))
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("database unavailable")
	cache, mr := newTestCache(t, source)
	ctx := context.Background()

	_, err := cache.AveragePriceByCategory(ctx)
	require.Error(t, err)
	assert.False(t, mr.Exists(entryKey(0, reportCategoryAverages)))

	source.err = nil
	averages, err := cache.AveragePriceByCategory(ctx)
	require.NoError(t, err)
	assert.Len(t, averages, 1)
	assert.Equal(t, 2, source.count("average"))
}

func TestCacheInvalidateDropsEveryReport(t *testing.T) {
	source := newFakeSource()
	cache, mr := newTestCache(t, source)
	ctx := context.Background()

	_, err := cache.StatsByCategory(ctx)
	require.NoError(t, err)
	_, err = cache.SalesBetween(ctx, time.Unix(0, 0), time.Unix(100, 0))
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx))
	gen, err := mr.Get(keyGeneration)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	_, err = cache.StatsByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count("category"))
}

func TestCacheFallsBackWhenRedisIsDown(t *testing.T) {
	source := newFakeSource()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(source, client, time.Minute, zap.NewNop())
	mr.Close()

	stats, err := cache.StatsByCategory(context.Background())
	require.NoError(t, err)
	assert.Len(t, stats, 1)
	assert.Equal(t, 1, source.count("category"))
}

func TestCacheWithoutClientPassesThrough(t *testing.T) {
	source := newFakeSource()
	cache := NewCache(source, nil, time.Minute, nil)
	ctx := context.Background()

	_, err := cache.StatsByCategory(ctx)
	require.NoError(t, err)
	_, err = cache.StatsByCategory(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, source.count("category"))
	assert.NoError(t, cache.Invalidate(ctx))
}

func TestCacheLoadRacingInvalidateIsNotStored(t *testing.T) {
	source := newGatedSource()
	source.setAverage("100")
	cache, _ := newTestCache(t, source)
	ctx := context.Background()

	type result struct {
		stats []models.CategoryStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := cache.StatsByCategory(ctx)
		done <- result{stats, err}
	}()

	<-source.started
	source.setAverage("999")
	require.NoError(t, cache.Invalidate(ctx))
	close(source.release)

	first := <-done
	require.NoError(t, first.err)
	require.Len(t, first.stats, 1)
	assert.Equal(t, "100", first.stats[0].AveragePrice.String())

	next, err := cache.StatsByCategory(ctx)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "999", next[0].AveragePrice.String())
	assert.Equal(t, 2, source.count("category"))

	again, err := cache.StatsByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "999", again[0].AveragePrice.String())
	assert.Equal(t, 2, source.count("category"))
}

func TestCacheSharedLoadSurvivesCallerCancellation(t *testing.T) {
	source := newGatedSource()
	cache, mr := newTestCache(t, source)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.StatsByCategory(leaderCtx)
		leaderErr <- err
	}()

	<-source.started
	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(source.release)
	assert.NoError(t, <-source.loadErr)

	require.Eventually(t, func() bool {
		return mr.Exists(entryKey(0, reportCategoryStats))
	}, time.Second, 10*time.Millisecond)

	stats, err := cache.StatsByCategory(context.Background())
	require.NoError(t, err)
	assert.Len(t, stats, 1)
	assert.Equal(t, 1, source.count("category"))
}

func TestCacheTreatsTypedNilClientAsDisabled(t *testing.T) {
	source := newFakeSource()
	var client *redis.Client
	cache := NewCache(source, client, time.Minute, nil)
	ctx := context.Background()

	_, err := cache.StatsByCategory(ctx)
	require.NoError(t, err)
	assert.NoError(t, cache.Invalidate(ctx))
	assert.Equal(t, 1, source.count("category"))
}
