package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
)

func testConfig(baseURL string) config.YouTubeConfig {
	cfg := config.Default().YouTube
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.RequestsPerSecond = 0
	cfg.Retry = config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	return cfg
}

func TestUploadsPlaylist(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels", r.URL.Path)
		assert.Equal(t, "UC123", r.URL.Query().Get("id"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"UU123"}}}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), server.Client(), nil)
	id, err := client.UploadsPlaylist(context.Background(), "UC123")
	require.NoError(t, err)
	assert.Equal(t, "UU123", id)
}

func TestUploadsPlaylistUnknownChannel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), server.Client(), nil)
	_, err := client.UploadsPlaylist(context.Background(), "UCmissing")
	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
}

func TestPlaylistPage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/playlistItems", r.URL.Path)
		assert.Equal(t, "UU123", q.Get("playlistId"))
		assert.Equal(t, "50", q.Get("maxResults"))
		assert.Equal(t, "tok1", q.Get("pageToken"))
		_, _ = w.Write([]byte(`{
			"nextPageToken": "tok2",
			"items": [
				{"snippet": {"title": "Corrections: Week 1", "publishedAt": "2023-01-06T20:00:00Z", "resourceId": {"videoId": "v1"}}},
				{"snippet": {"title": "Monologue", "publishedAt": "2023-01-05T20:00:00Z", "resourceId": {"videoId": "v2"}}}
			]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), server.Client(), nil)
	page, err := client.PlaylistPage(context.Background(), "UU123", "tok1", 50)
	require.NoError(t, err)
	require.Len(t, page.Videos, 2)
	assert.Equal(t, "tok2", page.NextPageToken)
	assert.Equal(t, "v1", page.Videos[0].ID)
	assert.Equal(t, "Corrections: Week 1", page.Videos[0].Title)
	assert.Equal(t, time.Date(2023, 1, 6, 20, 0, 0, 0, time.UTC), page.Videos[0].PublishedAt)
}

func TestCommentPage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/commentThreads", r.URL.Path)
		assert.Equal(t, "v1", q.Get("videoId"))
		assert.Equal(t, "plainText", q.Get("textFormat"))
		assert.Empty(t, q.Get("pageToken"))
		_, _ = w.Write([]byte(`{
			"items": [
				{"snippet": {"totalReplyCount": 3, "topLevelComment": {"snippet": {
					"textDisplay": "Seth nailed it", "likeCount": 12, "publishedAt": "2023-01-07T10:30:00Z"}}}}
			]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), server.Client(), nil)
	page, err := client.CommentPage(context.Background(), "v1", "", 100)
	require.NoError(t, err)
	assert.Empty(t, page.NextPageToken)
	require.Len(t, page.Comments, 1)

	c := page.Comments[0]
	assert.Equal(t, "v1", c.VideoID)
	assert.Equal(t, "Seth nailed it", c.Text)
	assert.Equal(t, 12, c.LikeCount)
	assert.Equal(t, 3, c.ReplyCount)
	assert.Equal(t, domain.NoCluster, c.Cluster)
	assert.False(t, c.Clustered())
}

func TestCommentPageHTMLFormat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "html", r.URL.Query().Get("textFormat"))
		_, _ = w.Write([]byte(`{"items": [{"snippet": {"topLevelComment": {"snippet": {
			"textDisplay": "first line<br>see <a href=\"https://x.co\">this</a> &amp; that",
			"publishedAt": "2023-01-07T10:30:00Z"}}}}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.TextFormat = "html"
	client := NewClient(cfg, server.Client(), nil)
	page, err := client.CommentPage(context.Background(), "v1", "", 100)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, "first line\nsee this & that", page.Comments[0].Text)
}

func TestRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"UU1"}}}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), server.Client(), nil)
	id, err := client.UploadsPlaylist(context.Background(), "UC1")
	require.NoError(t, err)
	assert.Equal(t, "UU1", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), server.Client(), nil)
	_, err := client.PlaylistPage(context.Background(), "UU1", "", 50)

	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPermanentStatusIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota."}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), server.Client(), nil)
	_, err := client.CommentPage(context.Background(), "v1", "", 100)

	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)
	assert.Contains(t, upErr.Body, "exceeded your quota")
	assert.Equal(t, "commentThreads.list", upErr.Op)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTMLToTextPassthrough(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "plain words", htmlToText("plain words"))
}
