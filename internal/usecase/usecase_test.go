package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CommentTrends/internal/aggregate"
	"CommentTrends/internal/cache"
	"CommentTrends/internal/clustering"
	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/infrastructure/storage"
	"CommentTrends/internal/textclean"
)

type fakeSource struct {
	comments []domain.Comment
	err      error
	calls    int
}

func (f *fakeSource) Collect(ctx context.Context) ([]domain.Comment, error) {
	f.calls++
	return f.comments, f.err
}

// firstLetterStrategy clusters by whether the cleaned text starts before "m".
type firstLetterStrategy struct {
	docs []string
	err  error
}

func (s *firstLetterStrategy) Name() string { return "first-letter" }

func (s *firstLetterStrategy) Cluster(ctx context.Context, docs []string, n int) (clustering.Result, error) {
	s.docs = docs
	if s.err != nil {
		return clustering.Result{}, s.err
	}
	out := make([]int, len(docs))
	for i, d := range docs {
		if d[0] >= 'm' && n > 1 {
			out[i] = 1
		}
	}
	return clustering.Result{Assignments: out, TopTerms: make([][]string, n)}, nil
}

type recordingReader struct {
	invalidated []string
}

func (r *recordingReader) Snapshot(ctx context.Context, path string) (domain.Snapshot, error) {
	return domain.Snapshot{}, domain.ErrSnapshotNotFound
}

func (r *recordingReader) Invalidate(path string) {
	r.invalidated = append(r.invalidated, path)
}

type fixture struct {
	dir      string
	repo     *storage.CSVRepository
	runs     *storage.RunRepository
	source   *fakeSource
	strategy *firstLetterStrategy
	reader   *recordingReader
	pipeline *Pipeline
}

func newFixture(t *testing.T, comments []domain.Comment) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		repo:     storage.NewCSVRepository(filepath.Join(dir, "raw.csv"), filepath.Join(dir, "comments.csv")),
		runs:     storage.NewRunRepository(filepath.Join(dir, "runs")),
		source:   &fakeSource{comments: comments},
		strategy: &firstLetterStrategy{},
		reader:   &recordingReader{},
	}
	ids := []string{"run-a", "run-b", "run-c"}
	next := 0
	f.pipeline = NewPipeline(PipelineDeps{
		Source:     f.source,
		Repository: f.repo,
		Runs:       f.runs,
		Strategy:   f.strategy,
		Cleaner:    textclean.New(textclean.ModeAlpha, 5),
		Cache:      f.reader,
		NClusters:  2,
		Now:        func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
		NewRunID: func() string {
			id := ids[next]
			next++
			return id
		},
	})
	return f
}

func at(day int, month time.Month) time.Time {
	return time.Date(2023, month, day, 12, 0, 0, 0, time.UTC)
}

func collected() []domain.Comment {
	return []domain.Comment{
		{VideoID: "v1", Text: "Absolutely hilarious bit", PublishedAt: at(1, time.January), Cluster: domain.NoCluster},
		{VideoID: "v1", Text: "   ", PublishedAt: at(1, time.January), Cluster: domain.NoCluster},
		{VideoID: "v1", Text: "😂😂", PublishedAt: at(2, time.January), Cluster: domain.NoCluster},
		{VideoID: "v2", Text: "Next week please http://x.co", PublishedAt: at(2, time.January), Cluster: domain.NoCluster},
		{VideoID: "v2", Text: "Best segment on TV", PublishedAt: at(1, time.February), Cluster: domain.NoCluster},
	}
}

func TestRefreshCollectsCleansAndPersists(t *testing.T) {
	f := newFixture(t, collected())
	ctx := context.Background()

	run, err := f.pipeline.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.source.calls)
	assert.True(t, f.repo.RawCacheExists())
	assert.Equal(t, []string{"absolutely hilarious bit", "next week please", "best segment on tv"}, f.strategy.docs)

	assert.Equal(t, "run-a", run.ID)
	assert.Equal(t, "first-letter", run.Strategy)
	assert.Equal(t, 3, run.CommentCount)
	require.Len(t, run.Clusters, 2)
	assert.Equal(t, 2, run.Clusters[0].Size)
	assert.Equal(t, 1, run.Clusters[1].Size)
	assert.Equal(t, []string{"Next week please http://x.co"}, run.Clusters[1].Examples)
	assert.Equal(t, []string{f.repo.SnapshotPath()}, f.reader.invalidated)

	snap, err := f.repo.LoadSnapshot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "run-a", snap.RunID)
	require.Len(t, snap.Comments, 3)
	assert.Equal(t, 0, snap.Comments[0].Cluster)
	assert.Equal(t, 1, snap.Comments[1].Cluster)
	assert.Equal(t, "next week please", snap.Comments[1].CleanText)

	saved, err := f.runs.LoadRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, run.CommentCount, saved.CommentCount)
}

func TestRefreshReusesRawCache(t *testing.T) {
	f := newFixture(t, collected())
	ctx := context.Background()

	_, err := f.pipeline.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	f.source.comments = nil

	run, err := f.pipeline.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.calls)
	assert.Equal(t, 3, run.CommentCount)

	f.source.comments = collected()[:1]
	run, err = f.pipeline.Refresh(ctx, RefreshOptions{Refetch: true})
	require.NoError(t, err)
	assert.Equal(t, 2, f.source.calls)
	assert.Equal(t, 1, run.CommentCount)
}

func TestRefreshEmptyResultKeepsPreviousSnapshot(t *testing.T) {
	f := newFixture(t, collected())
	ctx := context.Background()

	_, err := f.pipeline.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	before, err := os.ReadFile(f.repo.SnapshotPath())
	require.NoError(t, err)

	f.source.err = &domain.EmptyResultError{Keyword: "corrections"}
	_, err = f.pipeline.Refresh(ctx, RefreshOptions{Refetch: true})
	var empty *domain.EmptyResultError
	require.True(t, errors.As(err, &empty))

	after, err := os.ReadFile(f.repo.SnapshotPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRefreshEmptyResultWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.source.err = &domain.EmptyResultError{Keyword: "corrections"}

	_, err := f.pipeline.Refresh(context.Background(), RefreshOptions{})
	require.Error(t, err)
	assert.False(t, f.repo.RawCacheExists())
	_, statErr := os.Stat(f.repo.SnapshotPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRefreshSurfacesInsufficientData(t *testing.T) {
	f := newFixture(t, collected())
	f.strategy.err = &domain.InsufficientDataError{Reason: "3 distinct documents for 6 clusters"}

	_, err := f.pipeline.Refresh(context.Background(), RefreshOptions{})
	var insufficient *domain.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Contains(t, err.Error(), "relax document-frequency thresholds")
}

func TestRefreshAllCommentsDropped(t *testing.T) {
	f := newFixture(t, []domain.Comment{{Text: "ok"}, {Text: "🔥"}})

	_, err := f.pipeline.Refresh(context.Background(), RefreshOptions{})
	var insufficient *domain.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
}

func TestRefreshKeepsShortCommentsUnderTFIDFDefaults(t *testing.T) {
	cleaning := config.Default().Cleaning
	f := newFixture(t, []domain.Comment{
		{VideoID: "v1", Text: "LOL", PublishedAt: at(1, time.January), Cluster: domain.NoCluster},
		{VideoID: "v1", Text: "Next week please", PublishedAt: at(2, time.January), Cluster: domain.NoCluster},
	})
	f.pipeline.cleaner = textclean.New(textclean.ModeAlpha, cleaning.MinLengthFor("tfidf"))

	run, err := f.pipeline.Refresh(context.Background(), RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"lol", "next week please"}, f.strategy.docs)
	assert.Equal(t, 2, run.CommentCount)
}

func TestRefreshRejectsOverlap(t *testing.T) {
	f := newFixture(t, collected())
	f.pipeline.mu.Lock()
	defer f.pipeline.mu.Unlock()

	_, err := f.pipeline.Refresh(context.Background(), RefreshOptions{})
	assert.ErrorIs(t, err, ErrRefreshInProgress)
}

func newTrendService(t *testing.T, f *fixture) *TrendService {
	t.Helper()
	reader := cache.NewSnapshotCache(f.repo, config.CacheConfig{TTL: time.Hour}, nil, nil)
	return NewTrendService(reader, f.runs, f.repo.SnapshotPath(), nil)
}

func TestTrendsEndToEndScenario(t *testing.T) {
	f := newFixture(t, []domain.Comment{
		{VideoID: "v1", Text: "first comment here", PublishedAt: time.Date(2023, 1, 1, 8, 0, 0, 0, time.UTC)},
		{VideoID: "v1", Text: "second comment here", PublishedAt: time.Date(2023, 1, 2, 8, 0, 0, 0, time.UTC)},
		{VideoID: "v2", Text: "another comment", PublishedAt: time.Date(2023, 2, 1, 8, 0, 0, 0, time.UTC)},
	})
	f.pipeline.nClusters = 1
	ctx := context.Background()

	_, err := f.pipeline.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	svc := newTrendService(t, f)

	daily, err := svc.Trends(ctx, TrendRequest{Granularity: aggregate.Daily})
	require.NoError(t, err)
	require.Len(t, daily.Points, 3)
	for _, p := range daily.Points {
		assert.Equal(t, 1, p.Count)
		assert.Equal(t, "Topic 0", p.Topic)
	}
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), daily.From)
	assert.Equal(t, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), daily.To)

	monthly, err := svc.Trends(ctx, TrendRequest{
		From:        time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		Granularity: aggregate.Monthly,
	})
	require.NoError(t, err)
	require.Len(t, monthly.Points, 2)
	assert.Equal(t, 2, monthly.Points[0].Count)
	assert.Equal(t, 1, monthly.Points[1].Count)
	assert.Equal(t, 3, monthly.Total)
}

func TestTrendsUseLabelsOfTheSnapshotRunOnly(t *testing.T) {
	f := newFixture(t, collected())
	ctx := context.Background()

	first, err := f.pipeline.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)

	first.Clusters[0].Label = "Praise"
	first.Clusters[1].Label = "Requests"
	require.NoError(t, f.runs.SaveRun(ctx, first))

	svc := newTrendService(t, f)
	report, err := svc.Trends(ctx, TrendRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Praise", "Requests"}, report.Topics)

	// A new run must not inherit the curated labels of run-a.
	_, err = f.pipeline.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	svc = newTrendService(t, f)
	report, err = svc.Trends(ctx, TrendRequest{})
	require.NoError(t, err)
	assert.Equal(t, "run-b", report.RunID)
	assert.Equal(t, []string{"Topic 0", "Topic 1"}, report.Topics)
}

func TestTrendsMissingSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	_, err := newTrendService(t, f).Trends(context.Background(), TrendRequest{})
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

type immediateDriver struct {
	started bool
	stopped bool
}

func (d *immediateDriver) Start(ctx context.Context, job func(time.Time)) error {
	d.started = true
	job(time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC))
	return nil
}

func (d *immediateDriver) Stop(ctx context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsRefetchingRefresh(t *testing.T) {
	f := newFixture(t, collected())
	require.NoError(t, f.repo.SaveRaw(context.Background(), collected()[:1]))

	driver := &immediateDriver{}
	s := NewScheduler(driver, f.pipeline, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.True(t, driver.started)
	assert.True(t, driver.stopped)
	assert.Equal(t, 1, f.source.calls)
}
