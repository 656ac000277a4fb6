package usage

import (
	"context"
	"time"
)

// ActivityBucket is one (weekday, hour) cell in GetActivity's result.
// Weekday follows time.Weekday (Sunday = 0).
type ActivityBucket struct {
	Weekday time.Weekday
	Hour int
	Counters Counters
}

// GetActivity implements GetActivity: hourly aggregates
// bucketed by (weekday, hour) in the caller's IANA zone (default UTC),
// with all 7×24 buckets always present, zero-filled where there is no
// data. Never hand-rolls DST math — time.LoadLocation does the zone
// conversion ( design note).
func (e *Explorer) GetActivity(ctx context.Context, q ExploreQuery) ([]ActivityBucket, error) {
	key := q.CacheKey("activity")
	v, err := e.cache.LoadOrCompute(ctx, key, 15*time.Second, func(ctx context.Context) (any, error) {
		return e.computeActivity(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return v.([]ActivityBucket), nil
}

func (e *Explorer) computeActivity(ctx context.Context, q ExploreQuery) ([]ActivityBucket, error) {
	loc, err := time.LoadLocation(q.Range.Timezone)
	if err != nil {
		loc = time.UTC
	}

	rows, err := e.store.QueryHourly(ctx, q.Range, q.Filters)
	if err != nil {
		return nil, err
	}

	var buckets [7][24]Counters
	for _, r := range rows {
		local := r.HourStart.In(loc)
		buckets[local.Weekday()][local.Hour()] = buckets[local.Weekday()][local.Hour()].Add(r.Counters)
	}

	out := make([]ActivityBucket, 0, 7*24)
	for wd := 0; wd < 7; wd++ {
		for h := 0; h < 24; h++ {
			out = append(out, ActivityBucket{Weekday: time.Weekday(wd), Hour: h, Counters: buckets[wd][h]})
		}
	}
	return out, nil
}
