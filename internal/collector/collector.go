// Package collector enumerates channel uploads and pulls their top-level comments.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/ports"
)

// Collector implements ports.CommentSource on top of a VideoPlatform.
type Collector struct {
	platform ports.VideoPlatform
	cfg      config.YouTubeConfig
	logger   *slog.Logger
}

var _ ports.CommentSource = (*Collector)(nil)

// New wires the platform client with collection limits.
func New(platform ports.VideoPlatform, cfg config.YouTubeConfig, logger *slog.Logger) *Collector {
	if cfg.VideoPageSize <= 0 {
		cfg.VideoPageSize = 50
	}
	if cfg.CommentPageSize <= 0 {
		cfg.CommentPageSize = 100
	}
	return &Collector{platform: platform, cfg: cfg, logger: logger}
}

// Collect resolves the uploads playlist, matches videos by title and
// fetches comments for each match.
func (c *Collector) Collect(ctx context.Context) ([]domain.Comment, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, &domain.ConfigurationError{Field: "YOUTUBE_API_KEY", Reason: "is required"}
	}
	if strings.TrimSpace(c.cfg.ChannelID) == "" {
		return nil, &domain.ConfigurationError{Field: "YOUTUBE_CHANNEL_ID", Reason: "is required"}
	}
	if c.platform == nil {
		return nil, fmt.Errorf("video platform is not configured")
	}

	playlistID, err := c.platform.UploadsPlaylist(ctx, c.cfg.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("resolve uploads playlist: %w", err)
	}

	candidates, err := c.ScanUploads(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	videos := c.MatchVideos(candidates)
	if len(videos) == 0 {
		return nil, &domain.EmptyResultError{Keyword: c.cfg.TitleKeyword}
	}
	c.info("matched videos", "candidates", len(candidates), "matched", len(videos), "keyword", c.cfg.TitleKeyword)

	var all []domain.Comment
	for i, video := range videos {
		comments, err := c.VideoComments(ctx, video.ID)
		if err != nil {
			return nil, fmt.Errorf("video %s: %w", video.ID, err)
		}
		c.debug("fetched comments", "video", video.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(videos)), "count", len(comments))
		all = append(all, comments...)
	}

	c.info("collection finished", "videos", len(videos), "comments", humanize.Comma(int64(len(all))))
	return all, nil
}

// ScanUploads pages through the playlist and returns every candidate seen.
// It stops when no continuation token is returned or once enough titles match.
func (c *Collector) ScanUploads(ctx context.Context, playlistID string) ([]domain.Video, error) {
	var (
		candidates []domain.Video
		matched    int
		token      string
	)

	for {
		page, err := c.platform.PlaylistPage(ctx, playlistID, token, c.cfg.VideoPageSize)
		if err != nil {
			return nil, fmt.Errorf("list playlist %s: %w", playlistID, err)
		}

		for _, video := range page.Videos {
			if c.titleMatches(video.Title) {
				matched++
			}
		}
		candidates = append(candidates, page.Videos...)

		if page.NextPageToken == "" {
			break
		}
		if c.cfg.MaxVideos > 0 && matched >= c.cfg.MaxVideos {
			break
		}
		token = page.NextPageToken
	}

	return candidates, nil
}

// MatchVideos keeps candidates whose title contains the keyword, case-insensitively,
// capped at the configured maximum.
func (c *Collector) MatchVideos(candidates []domain.Video) []domain.Video {
	var matched []domain.Video
	seen := map[string]struct{}{}
	for _, video := range candidates {
		if !c.titleMatches(video.Title) {
			continue
		}
		if _, ok := seen[video.ID]; ok {
			continue
		}
		seen[video.ID] = struct{}{}
		matched = append(matched, video)
		if c.cfg.MaxVideos > 0 && len(matched) == c.cfg.MaxVideos {
			break
		}
	}
	return matched
}

// VideoComments pages through top-level comments until the configured
// maximum is reached or the listing ends.
func (c *Collector) VideoComments(ctx context.Context, videoID string) ([]domain.Comment, error) {
	var (
		comments []domain.Comment
		token    string
	)

	for c.cfg.MaxComments <= 0 || len(comments) < c.cfg.MaxComments {
		page, err := c.platform.CommentPage(ctx, videoID, token, c.cfg.CommentPageSize)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		comments = append(comments, page.Comments...)

		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	if c.cfg.MaxComments > 0 && len(comments) > c.cfg.MaxComments {
		comments = comments[:c.cfg.MaxComments]
	}
	for i := range comments {
		comments[i].VideoID = videoID
		comments[i].Cluster = domain.NoCluster
	}
	return comments, nil
}

func (c *Collector) titleMatches(title string) bool {
	keyword := strings.ToLower(strings.TrimSpace(c.cfg.TitleKeyword))
	return strings.Contains(strings.ToLower(title), keyword)
}

func (c *Collector) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Collector) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
