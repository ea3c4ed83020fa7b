// Package series produces gap-free hourly counts for trend charts.
package series

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cleanflip/opsight/internal/cache"
	"github.com/cleanflip/opsight/internal/store"
)

const (
	minDays = 1
	maxDays = 30
)

// Bucket is one hourly window. Buckets with zero events are emitted
// explicitly so chart rendering never needs client-side gap filling.
type Bucket struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// Service reads the hourly rollup and zero-fills it into a dense window.
type Service struct {
	store store.Store
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// New creates a series Service. cache may be nil to disable response caching.
func New(s store.Store, c cache.Cache, ttl time.Duration) *Service {
	return &Service{store: s, cache: c, ttl: ttl, now: time.Now}
}

// Series returns exactly days*24 hourly buckets ending at the current hour.
// days is clamped to [1, 30]. Results are cached briefly; cache failures
// fall through to the store.
func (s *Service) Series(ctx context.Context, days int) ([]Bucket, error) {
	if days < minDays {
		days = minDays
	}
	if days > maxDays {
		days = maxDays
	}

	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, cache.SeriesKey(days)); err == nil && found {
			var buckets []Bucket
			if err := json.Unmarshal(raw, &buckets); err == nil {
				return buckets, nil
			}
		}
	}

	hours := days * 24
	end := s.now().UTC().Truncate(time.Hour).Add(time.Hour)
	start := end.Add(-time.Duration(hours) * time.Hour)

	counts, err := s.store.HourlyCounts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load hourly counts: %w", err)
	}

	buckets := Fill(counts, start, hours)

	if s.cache != nil {
		if raw, err := json.Marshal(buckets); err == nil {
			if err := s.cache.Set(ctx, cache.SeriesKey(days), raw, s.ttl); err != nil {
				slog.Warn("series cache set failed", "days", days, "error", err)
			}
		}
	}

	return buckets, nil
}

// Recount recomputes the same window directly from the event log, bypassing
// the incremental rollup. The rollup is a performance cache, not the source
// of truth: both paths must agree.
func (s *Service) Recount(ctx context.Context, days int) ([]Bucket, error) {
	if days < minDays {
		days = minDays
	}
	if days > maxDays {
		days = maxDays
	}
	hours := days * 24
	end := s.now().UTC().Truncate(time.Hour).Add(time.Hour)
	start := end.Add(-time.Duration(hours) * time.Hour)

	counts, err := s.store.RecountHourly(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("recount hourly: %w", err)
	}
	return Fill(counts, start, hours), nil
}

// Fill expands sparse hourly counts into a dense window of exactly hours
// buckets starting at start. Counts outside the window are dropped; counts
// on the same hour are summed.
func Fill(counts []store.HourCount, start time.Time, hours int) []Bucket {
	start = start.UTC().Truncate(time.Hour)
	buckets := make([]Bucket, hours)
	for i := range buckets {
		buckets[i].Hour = start.Add(time.Duration(i) * time.Hour)
	}
	for _, hc := range counts {
		idx := int(hc.Hour.UTC().Truncate(time.Hour).Sub(start) / time.Hour)
		if idx < 0 || idx >= hours {
			continue
		}
		buckets[idx].Count += hc.Count
	}
	return buckets
}
