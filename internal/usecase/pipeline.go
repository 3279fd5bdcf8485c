package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"CommentTrends/internal/clustering"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/metrics"
	"CommentTrends/internal/ports"
	"CommentTrends/internal/textclean"
)

// ErrRefreshInProgress is returned when a refresh is requested while another runs.
var ErrRefreshInProgress = errors.New("a refresh is already running")

// PipelineDeps wires all driven adapters into the refresh pipeline.
type PipelineDeps struct {
	Source     ports.CommentSource
	Repository ports.CommentRepository
	Runs       ports.RunRepository
	Strategy   clustering.Strategy
	Cleaner    *textclean.Cleaner
	Cache      ports.SnapshotReader
	Logger     *slog.Logger

	NClusters int
	Examples  int

	Now      func() time.Time
	NewRunID func() string
}

// Pipeline implements collect → clean → cluster → persist.
type Pipeline struct {
	source     ports.CommentSource
	repository ports.CommentRepository
	runs       ports.RunRepository
	strategy   clustering.Strategy
	cleaner    *textclean.Cleaner
	cache      ports.SnapshotReader
	logger     *slog.Logger
	nClusters  int
	examples   int
	now        func() time.Time
	newRunID   func() string

	mu sync.Mutex
}

// RefreshOptions tunes one refresh.
type RefreshOptions struct {
	// Refetch ignores an existing raw cache and calls the upstream API.
	Refetch bool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:     deps.Source,
		repository: deps.Repository,
		runs:       deps.Runs,
		strategy:   deps.Strategy,
		cleaner:    deps.Cleaner,
		cache:      deps.Cache,
		logger:     deps.Logger,
		nClusters:  deps.NClusters,
		examples:   deps.Examples,
		now:        deps.Now,
		newRunID:   deps.NewRunID,
	}
	if p.cleaner == nil {
		p.cleaner = textclean.New(textclean.ModeAlpha, 0)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	if p.examples <= 0 {
		p.examples = 5
	}
	return p
}

// Refresh runs the whole batch and returns the new run's summary.
// Nothing is written when collection finds no matching videos.
func (p *Pipeline) Refresh(ctx context.Context, opts RefreshOptions) (domain.Run, error) {
	if !p.mu.TryLock() {
		return domain.Run{}, ErrRefreshInProgress
	}
	defer p.mu.Unlock()

	metrics.IncrRefreshes()
	run, err := p.refresh(ctx, opts)
	if err != nil {
		metrics.IncrRefreshErrors()
	}
	return run, err
}

func (p *Pipeline) refresh(ctx context.Context, opts RefreshOptions) (domain.Run, error) {
	if p.repository == nil || p.strategy == nil {
		return domain.Run{}, fmt.Errorf("pipeline is missing a repository or clustering strategy")
	}
	started := p.now()

	comments, err := p.loadComments(ctx, opts)
	if err != nil {
		return domain.Run{}, err
	}

	kept, docs := p.clean(comments)
	p.info("cleaned comments", "fetched", humanize.Comma(int64(len(comments))), "kept", humanize.Comma(int64(len(kept))))
	if len(kept) == 0 {
		return domain.Run{}, &domain.InsufficientDataError{Reason: "no comments left after cleaning"}
	}

	result, err := p.strategy.Cluster(ctx, docs, p.nClusters)
	if err != nil {
		return domain.Run{}, fmt.Errorf("cluster comments: %w", err)
	}
	if len(result.Assignments) != len(kept) {
		return domain.Run{}, fmt.Errorf("cluster comments: %d assignments for %d comments", len(result.Assignments), len(kept))
	}

	runID := p.newRunID()
	raw := make([]string, len(kept))
	for i := range kept {
		kept[i].Cluster = result.Assignments[i]
		kept[i].RunID = runID
		raw[i] = kept[i].Text
	}

	run := domain.Run{
		ID:           runID,
		CreatedAt:    p.now().UTC(),
		Strategy:     p.strategy.Name(),
		NClusters:    p.nClusters,
		CommentCount: len(kept),
		Clusters:     clustering.Summarize(raw, result, p.nClusters, p.examples),
	}

	if snapshotPath, ok := p.repository.(interface{ SnapshotPath() string }); ok {
		run.SnapshotPath = snapshotPath.SnapshotPath()
	}
	if p.runs != nil {
		if err := p.runs.SaveRun(ctx, run); err != nil {
			return domain.Run{}, fmt.Errorf("save run artifact: %w", err)
		}
	}

	path, err := p.repository.SaveSnapshot(ctx, kept)
	if err != nil {
		return domain.Run{}, fmt.Errorf("persist snapshot: %w", err)
	}
	run.SnapshotPath = path
	if p.cache != nil {
		p.cache.Invalidate(path)
	}

	p.info("refresh finished",
		"run_id", runID,
		"strategy", run.Strategy,
		"clusters", p.nClusters,
		"comments", humanize.Comma(int64(len(kept))),
		"inertia", result.Inertia,
		"took", time.Since(started).Round(time.Millisecond),
	)
	return run, nil
}

func (p *Pipeline) loadComments(ctx context.Context, opts RefreshOptions) ([]domain.Comment, error) {
	if !opts.Refetch && p.repository.RawCacheExists() {
		comments, err := p.repository.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		p.info("loaded raw cache", "comments", humanize.Comma(int64(len(comments))))
		return comments, nil
	}

	if p.source == nil {
		return nil, fmt.Errorf("no raw cache and no comment source configured")
	}
	comments, err := p.source.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect comments: %w", err)
	}
	if err := p.repository.SaveRaw(ctx, comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// clean drops blank and too-short comments and returns the kept rows with
// their cleaned text, in input order.
func (p *Pipeline) clean(comments []domain.Comment) ([]domain.Comment, []string) {
	kept := make([]domain.Comment, 0, len(comments))
	docs := make([]string, 0, len(comments))
	for _, c := range comments {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		cleaned := p.cleaner.Clean(c.Text)
		if !p.cleaner.Keep(cleaned) {
			continue
		}
		c.CleanText = cleaned
		c.Cluster = domain.NoCluster
		kept = append(kept, c)
		docs = append(docs, cleaned)
	}
	return kept, docs
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}
