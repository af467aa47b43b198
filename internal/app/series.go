package app

import (
	"slices"
	"time"

	"hydration/internal/domain"
)

// SeriesDays is the length of the trailing series window.
const SeriesDays = 7

// SeriesStart returns midnight of the first day of the window ending today.
func SeriesStart(now time.Time) time.Time {
	return domain.StartOfDay(now.AddDate(0, 0, -(SeriesDays - 1)))
}

// BuildSeries reduces sparse per-day sums into a dense, ascending series of
// SeriesDays buckets starting at start. Each sum is converted to unit and
// rounded up; sums outside the window are ignored.
func BuildSeries(start time.Time, sums []domain.DailySum, unit domain.Unit) []domain.DailyBucket {
	buckets := make([]domain.DailyBucket, SeriesDays)
	byDay := make(map[string]int, SeriesDays)
	for i := range buckets {
		buckets[i] = domain.NewDailyBucket(start.AddDate(0, 0, i), unit)
		byDay[buckets[i].Day] = i
	}

	for _, s := range sums {
		i, ok := byDay[domain.DayKey(s.Start.In(start.Location()))]
		if !ok {
			continue
		}
		buckets[i].Total = s.Sum.In(unit).Value.Ceil().InexactFloat64()
	}

	slices.SortFunc(buckets, func(a, b domain.DailyBucket) int {
		return a.Date.Compare(b.Date)
	})
	return buckets
}
