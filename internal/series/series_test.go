package series_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanflip/opsight/internal/cache"
	"github.com/cleanflip/opsight/internal/series"
	"github.com/cleanflip/opsight/internal/store"
)

// hourStore returns canned rollup rows and records the requested window.
type hourStore struct {
	store.Store // nil-panic on anything unimplemented

	counts []store.HourCount
	err    error
	from   time.Time
	to     time.Time
	calls  int
}

func (s *hourStore) HourlyCounts(_ context.Context, from, to time.Time) ([]store.HourCount, error) {
	s.calls++
	s.from, s.to = from, to
	return s.counts, s.err
}

func (s *hourStore) RecountHourly(_ context.Context, from, to time.Time) ([]store.HourCount, error) {
	s.from, s.to = from, to
	return s.counts, s.err
}

// memCache is a minimal in-process Cache.
type memCache struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error { delete(c.data, key); return nil }
func (c *memCache) Ping(_ context.Context) error               { return nil }
func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*memCache)(nil)

// --- Fill ---

func TestFill_DenseWindowNoGaps(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	buckets := series.Fill(nil, start, 24)

	require.Len(t, buckets, 24)
	for i, b := range buckets {
		assert.Equal(t, start.Add(time.Duration(i)*time.Hour), b.Hour)
		assert.Equal(t, int64(0), b.Count)
	}
}

func TestFill_PlacesCountsAndPreservesSum(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	counts := []store.HourCount{
		{Hour: start, Count: 3},
		{Hour: start.Add(5 * time.Hour), Count: 7},
		{Hour: start.Add(23 * time.Hour), Count: 1},
	}

	buckets := series.Fill(counts, start, 24)
	require.Len(t, buckets, 24)
	assert.Equal(t, int64(3), buckets[0].Count)
	assert.Equal(t, int64(7), buckets[5].Count)
	assert.Equal(t, int64(1), buckets[23].Count)

	var sum int64
	for _, b := range buckets {
		sum += b.Count
	}
	assert.Equal(t, int64(11), sum)
}

func TestFill_DropsCountsOutsideWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	counts := []store.HourCount{
		{Hour: start.Add(-time.Hour), Count: 99},
		{Hour: start.Add(24 * time.Hour), Count: 99},
		{Hour: start.Add(2 * time.Hour), Count: 4},
	}

	buckets := series.Fill(counts, start, 24)
	var sum int64
	for _, b := range buckets {
		sum += b.Count
	}
	assert.Equal(t, int64(4), sum)
}

func TestFill_SumsDuplicateHours(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	counts := []store.HourCount{
		{Hour: start.Add(time.Hour), Count: 2},
		{Hour: start.Add(time.Hour), Count: 3},
	}

	buckets := series.Fill(counts, start, 4)
	assert.Equal(t, int64(5), buckets[1].Count)
}

// --- Series ---

func TestSeries_OneDayIs24Buckets(t *testing.T) {
	st := &hourStore{}
	svc := series.New(st, nil, 0)

	buckets, err := svc.Series(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, buckets, 24)
	assert.Equal(t, 24*time.Hour, st.to.Sub(st.from))
}

func TestSeries_ClampsDays(t *testing.T) {
	st := &hourStore{}
	svc := series.New(st, nil, 0)

	buckets, err := svc.Series(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, buckets, 24)

	buckets, err = svc.Series(context.Background(), 365)
	require.NoError(t, err)
	assert.Len(t, buckets, 30*24)
}

func TestSeries_StoreErrorPropagates(t *testing.T) {
	st := &hourStore{err: errors.New("db down")}
	svc := series.New(st, nil, 0)

	_, err := svc.Series(context.Background(), 1)
	assert.Error(t, err)
}

func TestSeries_CachesResponse(t *testing.T) {
	st := &hourStore{}
	c := newMemCache()
	svc := series.New(st, c, 30*time.Second)
	ctx := context.Background()

	first, err := svc.Series(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.calls)

	second, err := svc.Series(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.calls, "second call served from cache")
	assert.Equal(t, first, second)
}

func TestSeries_CacheFailureFallsThrough(t *testing.T) {
	st := &hourStore{}
	c := newMemCache()
	c.getErr = errors.New("redis down")
	c.setErr = errors.New("redis down")
	svc := series.New(st, c, 30*time.Second)

	buckets, err := svc.Series(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, buckets, 24)
	assert.Equal(t, 1, st.calls)
}

func TestSeries_CorruptCacheEntryIgnored(t *testing.T) {
	st := &hourStore{}
	c := newMemCache()
	c.data[cache.SeriesKey(1)] = []byte("not json")
	svc := series.New(st, c, 30*time.Second)

	buckets, err := svc.Series(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, buckets, 24)
	assert.Equal(t, 1, st.calls)
}

func TestSeries_BucketJSONShape(t *testing.T) {
	b := series.Bucket{Hour: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), Count: 5}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hour":"2026-03-01T10:00:00Z","count":5}`, string(raw))
}

func TestRecount_SameWindowAsSeries(t *testing.T) {
	st := &hourStore{}
	svc := series.New(st, nil, 0)
	ctx := context.Background()

	_, err := svc.Series(ctx, 2)
	require.NoError(t, err)
	seriesFrom, seriesTo := st.from, st.to

	_, err = svc.Recount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, seriesFrom, st.from)
	assert.Equal(t, seriesTo, st.to)
}
