// Package aggregate buckets labeled comments into (time bucket, topic) counts.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"CommentTrends/internal/domain"
)

// Granularity is the bucket width of a trend query.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity accepts daily/weekly/monthly and their D/W/M shorthands.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily", "day", "d":
		return Daily, nil
	case "weekly", "week", "w":
		return Weekly, nil
	case "monthly", "month", "m":
		return Monthly, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want daily, weekly or monthly)", s)
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekday accepts SUN..SAT or full weekday names. Empty means Sunday.
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return time.Sunday, nil
	}
	if len(v) >= 3 {
		if d, ok := weekdays[v[:3]]; ok && (len(v) == 3 || strings.EqualFold(d.String(), v)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Item is one comment as seen by the aggregator. An empty Topic means unlabeled.
type Item struct {
	PublishedAt time.Time
	Topic       string
}

// Query selects an inclusive date range and a bucket width.
type Query struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
	WeekEnd     time.Weekday
	// FillEmpty emits every bucket in range for every topic, with zeros.
	FillEmpty bool
	// Topics seeds the topic axis when FillEmpty is set.
	Topics []string
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BucketKey returns the bucket a timestamp falls into.
func BucketKey(t time.Time, g Granularity, weekEnd time.Weekday) time.Time {
	day := Day(t)
	switch g {
	case Weekly:
		shift := (int(weekEnd) - int(day.Weekday()) + 7) % 7
		return day.AddDate(0, 0, shift)
	case Monthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func nextBucket(key time.Time, g Granularity) time.Time {
	switch g {
	case Weekly:
		return key.AddDate(0, 0, 7)
	case Monthly:
		return key.AddDate(0, 1, 0)
	default:
		return key.AddDate(0, 0, 1)
	}
}

// Aggregate counts items per (bucket, topic) inside [q.From, q.To].
// The upper bound is exclusive at q.To plus one day so comments on the
// end date always land in the final bucket. Output is sorted by bucket then topic.
func Aggregate(items []Item, q Query) ([]domain.TrendPoint, error) {
	if q.Granularity == "" {
		q.Granularity = Daily
	}
	from, to := Day(q.From), Day(q.To)
	if to.Before(from) {
		return nil, fmt.Errorf("date range end %s is before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	upper := to.AddDate(0, 0, 1)

	type key struct {
		bucket time.Time
		topic  string
	}
	counts := map[key]int{}
	topics := map[string]struct{}{}
	for _, t := range q.Topics {
		topics[t] = struct{}{}
	}

	for _, item := range items {
		if item.Topic == "" {
			continue
		}
		if item.PublishedAt.Before(from) || !item.PublishedAt.Before(upper) {
			continue
		}
		counts[key{BucketKey(item.PublishedAt, q.Granularity, q.WeekEnd), item.Topic}]++
		topics[item.Topic] = struct{}{}
	}

	if q.FillEmpty {
		for b := BucketKey(from, q.Granularity, q.WeekEnd); !b.After(BucketKey(to, q.Granularity, q.WeekEnd)); b = nextBucket(b, q.Granularity) {
			for t := range topics {
				k := key{b, t}
				if _, ok := counts[k]; !ok {
					counts[k] = 0
				}
			}
		}
	}

	points := make([]domain.TrendPoint, 0, len(counts))
	for k, n := range counts {
		points = append(points, domain.TrendPoint{Bucket: k.bucket, Topic: k.topic, Count: n})
	}
	sort.Slice(points, func(i, j int) bool {
		if !points[i].Bucket.Equal(points[j].Bucket) {
			return points[i].Bucket.Before(points[j].Bucket)
		}
		return points[i].Topic < points[j].Topic
	})
	return points, nil
}

// Total sums the counts of all points.
func Total(points []domain.TrendPoint) int {
	var n int
	for _, p := range points {
		n += p.Count
	}
	return n
}
