package ports

import (
	"context"
	"time"

	"CommentTrends/internal/domain"
)

// VideoPlatform is the upstream video API, one page per call.
type VideoPlatform interface {
	UploadsPlaylist(ctx context.Context, channelID string) (string, error)
	PlaylistPage(ctx context.Context, playlistID, pageToken string, pageSize int) (domain.VideoPage, error)
	CommentPage(ctx context.Context, videoID, pageToken string, pageSize int) (domain.CommentPage, error)
}

// CommentSource produces the raw comment table for one refresh.
type CommentSource interface {
	Collect(ctx context.Context) ([]domain.Comment, error)
}

// CommentRepository persists the raw cache and the clustered snapshot.
type CommentRepository interface {
	RawCacheExists() bool
	LoadRaw(ctx context.Context) ([]domain.Comment, error)
	SaveRaw(ctx context.Context, comments []domain.Comment) error
	SaveSnapshot(ctx context.Context, comments []domain.Comment) (string, error)
	LoadSnapshot(ctx context.Context, path string) (domain.Snapshot, error)
}

// RunRepository stores per-run cluster summaries and their label tables.
type RunRepository interface {
	SaveRun(ctx context.Context, run domain.Run) error
	LoadRun(ctx context.Context, runID string) (domain.Run, error)
}

// SnapshotReader returns the current snapshot, possibly from a cache.
type SnapshotReader interface {
	Snapshot(ctx context.Context, path string) (domain.Snapshot, error)
	Invalidate(path string)
}

// Embedder converts texts into dense vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Scheduler controls when refreshes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
