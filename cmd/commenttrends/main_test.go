package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CommentTrends/internal/aggregate"
	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/usecase"
)

func TestTrendRequest(t *testing.T) {
	req, err := trendRequest("2023-01-01", "2023-01-31", "weekly", "sat", true)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Weekly, req.Granularity)
	assert.Equal(t, time.Saturday, req.WeekEnd)
	assert.True(t, req.FillEmpty)
	assert.Equal(t, time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), req.To)

	_, err = trendRequest("yesterday", "", "daily", "", false)
	assert.Error(t, err)
	_, err = trendRequest("", "", "hourly", "", false)
	assert.Error(t, err)
}

func TestPrintTrends(t *testing.T) {
	var out bytes.Buffer
	day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, printTrends(&out, usecase.TrendReport{
		RunID: "r1", From: day, To: day, Granularity: aggregate.Daily, Total: 1200,
		Points: []domain.TrendPoint{{Bucket: day, Topic: "Jokes", Count: 1200}},
	}))
	assert.Contains(t, out.String(), "1,200 comments")
	assert.Contains(t, out.String(), "2023-01-01  Jokes  1200")
}

func TestExecuteWithoutSnapshot(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Logging.Level = "error"
	cfg.Storage.SnapshotPath = filepath.Join(dir, "comments.csv")
	cfg.Storage.RawCachePath = filepath.Join(dir, "raw.csv")
	cfg.Storage.RunsDir = filepath.Join(dir, "runs")

	var out bytes.Buffer
	err := execute(context.Background(), cfg, "summary", nil, &out)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	err = execute(context.Background(), cfg, "refresh", nil, &out)
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	assert.Error(t, execute(context.Background(), cfg, "bogus", nil, &out))
}
