package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"CommentTrends/internal/aggregate"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/metrics"
	"CommentTrends/internal/ports"
)

// TrendService is the read side: it never calls the upstream API, only
// reads the persisted snapshot and the run artifact that produced it.
type TrendService struct {
	reader ports.SnapshotReader
	runs   ports.RunRepository
	path   string
	logger *slog.Logger
}

// NewTrendService wires the snapshot reader and run artifacts.
func NewTrendService(reader ports.SnapshotReader, runs ports.RunRepository, snapshotPath string, logger *slog.Logger) *TrendService {
	return &TrendService{reader: reader, runs: runs, path: snapshotPath, logger: logger}
}

// TrendRequest is one dashboard query. Zero From/To default to the snapshot's date range.
type TrendRequest struct {
	From        time.Time
	To          time.Time
	Granularity aggregate.Granularity
	WeekEnd     time.Weekday
	FillEmpty   bool
}

// TrendReport is the aggregated series plus the context it was computed in.
type TrendReport struct {
	RunID       string                `json:"run_id"`
	From        time.Time             `json:"from"`
	To          time.Time             `json:"to"`
	Granularity aggregate.Granularity `json:"granularity"`
	Topics      []string              `json:"topics"`
	Total       int                   `json:"total"`
	Points      []domain.TrendPoint   `json:"points"`
}

// Snapshot returns the current snapshot; ErrSnapshotNotFound means a refresh is needed.
func (s *TrendService) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return s.reader.Snapshot(ctx, s.path)
}

// CurrentRun returns the run artifact matching the current snapshot.
func (s *TrendService) CurrentRun(ctx context.Context) (domain.Run, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return domain.Run{}, err
	}
	if snap.RunID == "" || s.runs == nil {
		return domain.Run{}, fmt.Errorf("snapshot %s has no run artifact", snap.Path)
	}
	return s.runs.LoadRun(ctx, snap.RunID)
}

// Labels maps cluster ids of snap to display names from the same run.
// Labels from any other run are never used.
func (s *TrendService) Labels(ctx context.Context, snap domain.Snapshot) map[int]string {
	labels := map[int]string{}
	if snap.RunID != "" && s.runs != nil {
		run, err := s.runs.LoadRun(ctx, snap.RunID)
		switch {
		case err == nil:
			labels = run.Labels()
		case s.logger != nil:
			s.logger.Warn("run artifact unavailable, using positional labels", "run_id", snap.RunID, "error", err)
		}
	}
	for _, c := range snap.Comments {
		if c.Clustered() {
			if _, ok := labels[c.Cluster]; !ok {
				labels[c.Cluster] = domain.DefaultLabel(c.Cluster)
			}
		}
	}
	return labels
}

// Trends filters the snapshot by date and buckets comment counts per topic.
func (s *TrendService) Trends(ctx context.Context, req TrendRequest) (TrendReport, error) {
	metrics.IncrTrendQueries()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return TrendReport{}, err
	}

	from, to := req.From, req.To
	if from.IsZero() || to.IsZero() {
		minT, maxT, ok := snap.DateRange()
		if !ok {
			return TrendReport{}, errors.New("snapshot holds no dated comments")
		}
		if from.IsZero() {
			from = minT
		}
		if to.IsZero() {
			to = maxT
		}
	}

	labels := s.Labels(ctx, snap)
	items := make([]aggregate.Item, 0, len(snap.Comments))
	for _, c := range snap.Comments {
		item := aggregate.Item{PublishedAt: c.PublishedAt}
		if c.Clustered() {
			item.Topic = labels[c.Cluster]
		}
		items = append(items, item)
	}

	topics := sortedTopics(labels)
	points, err := aggregate.Aggregate(items, aggregate.Query{
		From:        from,
		To:          to,
		Granularity: req.Granularity,
		WeekEnd:     req.WeekEnd,
		FillEmpty:   req.FillEmpty,
		Topics:      topics,
	})
	if err != nil {
		return TrendReport{}, err
	}

	granularity := req.Granularity
	if granularity == "" {
		granularity = aggregate.Daily
	}
	return TrendReport{
		RunID:       snap.RunID,
		From:        aggregate.Day(from),
		To:          aggregate.Day(to),
		Granularity: granularity,
		Topics:      topics,
		Total:       aggregate.Total(points),
		Points:      points,
	}, nil
}

func sortedTopics(labels map[int]string) []string {
	ids := make([]int, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	seen := map[string]struct{}{}
	topics := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[labels[id]]; dup {
			continue
		}
		seen[labels[id]] = struct{}{}
		topics = append(topics, labels[id])
	}
	return topics
}
