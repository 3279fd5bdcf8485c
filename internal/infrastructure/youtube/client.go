package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/metrics"
	"CommentTrends/internal/ports"
)

const (
	textFormatPlain = "plainText"
	textFormatHTML  = "html"
)

// Client talks to the YouTube Data API v3, one page per call.
type Client struct {
	baseURL    string
	apiKey     string
	textFormat string
	http       *http.Client
	limiter    *rate.Limiter
	retry      config.RetryConfig
	logger     *slog.Logger
}

var _ ports.VideoPlatform = (*Client)(nil)

// NewClient wires an HTTP client; a nil httpClient gets the configured timeout.
func NewClient(cfg config.YouTubeConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	textFormat := cfg.TextFormat
	if textFormat == "" {
		textFormat = textFormatPlain
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		textFormat: textFormat,
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		retry:      cfg.Retry,
		logger:     logger,
	}
}

type channelsResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			ResourceID  struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type commentThreadsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			TotalReplyCount int `json:"totalReplyCount"`
			TopLevelComment struct {
				Snippet struct {
					TextDisplay string `json:"textDisplay"`
					LikeCount   int    `json:"likeCount"`
					PublishedAt string `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UploadsPlaylist resolves the channel's uploads playlist id.
func (c *Client) UploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", channelID)

	var resp channelsResponse
	if err := c.get(ctx, "channels.list", "/channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", &domain.UpstreamError{Op: "channels.list", StatusCode: http.StatusOK, Body: "channel " + channelID + " has no uploads playlist"}
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// PlaylistPage lists one page of playlist items.
func (c *Client) PlaylistPage(ctx context.Context, playlistID, pageToken string, pageSize int) (domain.VideoPage, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp playlistItemsResponse
	if err := c.get(ctx, "playlistItems.list", "/playlistItems", params, &resp); err != nil {
		return domain.VideoPage{}, err
	}

	page := domain.VideoPage{
		Videos:        make([]domain.Video, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
	}
	for _, item := range resp.Items {
		page.Videos = append(page.Videos, domain.Video{
			ID:          item.Snippet.ResourceID.VideoID,
			Title:       item.Snippet.Title,
			PublishedAt: parseTimestamp(item.Snippet.PublishedAt),
		})
	}
	return page, nil
}

// CommentPage lists one page of top-level comment threads for a video.
func (c *Client) CommentPage(ctx context.Context, videoID, pageToken string, pageSize int) (domain.CommentPage, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("videoId", videoID)
	params.Set("maxResults", strconv.Itoa(pageSize))
	params.Set("textFormat", c.textFormat)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp commentThreadsResponse
	if err := c.get(ctx, "commentThreads.list", "/commentThreads", params, &resp); err != nil {
		return domain.CommentPage{}, err
	}

	page := domain.CommentPage{
		Comments:      make([]domain.Comment, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
	}
	for _, item := range resp.Items {
		top := item.Snippet.TopLevelComment.Snippet
		text := top.TextDisplay
		if c.textFormat == textFormatHTML {
			text = htmlToText(text)
		}
		page.Comments = append(page.Comments, domain.Comment{
			VideoID:     videoID,
			Text:        text,
			LikeCount:   top.LikeCount,
			PublishedAt: parseTimestamp(top.PublishedAt),
			ReplyCount:  item.Snippet.TotalReplyCount,
			Cluster:     domain.NoCluster,
		})
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, v any) error {
	params.Set("key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		if attempt > 1 {
			metrics.IncrUpstreamRetries()
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "CommentTrends/1.0")

		metrics.IncrUpstreamRequests()
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &domain.UpstreamError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, &domain.UpstreamError{Op: op, Err: fmt.Errorf("read body: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			upErr := &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: errorMessage(body)}
			if isRetryableStatus(resp.StatusCode) {
				return nil, upErr
			}
			return nil, backoff.Permanent(upErr)
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, operation, c.retryOptions(op)...)
	if err != nil {
		metrics.IncrUpstreamErrors()
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) {
			return upErr
		}
		return &domain.UpstreamError{Op: op, Err: err}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &domain.UpstreamError{Op: op, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) retryOptions(op string) []backoff.RetryOption {
	bo := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		bo.InitialInterval = c.retry.InitialInterval
	}
	if c.retry.MaxInterval > 0 {
		bo.MaxInterval = c.retry.MaxInterval
	}

	tries := c.retry.MaxAttempts
	if tries < 1 {
		tries = 1
	}

	return []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			if c.logger != nil {
				c.logger.Warn("upstream call failed, retrying", "op", op, "error", err, "next", next)
			}
		}),
	}
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func errorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// htmlToText flattens the markup the API returns for textFormat=html.
func htmlToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text())
}
